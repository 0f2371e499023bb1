package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestCollector_BusinessEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.AccountCreated()
	c.AccountCreated()
	c.CredentialCheck(true)
	c.CredentialCheck(false)
	c.CredentialCheck(false)
	c.MembershipChanged("add")
	c.GroupRemoved(3)

	assert.Equal(t, 2.0, family(t, reg, "okaeri_accounts_created_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, family(t, reg, "okaeri_groups_removed_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 3.0, family(t, reg, "okaeri_group_removal_accounts_cleaned_total").GetMetric()[0].GetCounter().GetValue())

	checks := map[string]float64{}
	for _, m := range family(t, reg, "okaeri_credential_checks_total").GetMetric() {
		checks[labels(m)["result"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"accepted": 1, "rejected": 2}, checks)

	mem := family(t, reg, "okaeri_membership_changes_total").GetMetric()
	require.Len(t, mem, 1)
	assert.Equal(t, "add", labels(mem[0])["op"])
}

func TestCollector_RecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("http", "create_account", "ok", 20*time.Millisecond)
	c.RecordRequest("http", "create_account", "conflict", 10*time.Millisecond)

	req := family(t, reg, "okaeri_requests_total").GetMetric()
	assert.Len(t, req, 2)

	lat := family(t, reg, "okaeri_request_duration_seconds").GetMetric()
	require.Len(t, lat, 1)
	assert.Equal(t, uint64(2), lat[0].GetHistogram().GetSampleCount())
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.AccountCreated()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "okaeri_accounts_created_total 1")
}
