package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/cryptox"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identityHeader = "X-Okaeri-Identity"

type recorder struct {
	mu  sync.Mutex
	ops map[string][]string
}

func (r *recorder) RecordRequest(transport, op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = map[string][]string{}
	}
	r.ops[transport+" "+op] = append(r.ops[transport+" "+op], outcome)
}

func newTestServer(t *testing.T, rec *recorder, ping func(context.Context) error) *httptest.Server {
	t.Helper()
	repos := repomanager.NewInMemoryRepositoryManager()
	hasher, err := cryptox.NewHasher(cryptox.MinIterations, 2)
	require.NoError(t, err)

	accounts, err := services.NewAccountService(repos, hasher, services.AccountOptions{
		LoginKeyField: "name",
		ProfileFields: []string{"email"},
	}, logging.Nop())
	require.NoError(t, err)
	groups, err := services.NewGroupService(repos, nil, logging.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		Accounts:       accounts,
		Groups:         groups,
		Membership:     services.NewMembershipService(repos, nil, logging.Nop()),
		IdentityHeader: identityHeader,
		Metrics:        rec,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		Ping:   ping,
		Logger: logging.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

type response struct {
	status int
	body   []byte
}

func (r response) text() string { return strings.TrimSpace(string(r.body)) }

func (r response) doc(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.body, &m), string(r.body))
	return m
}

func (r response) list(t *testing.T) []any {
	t.Helper()
	var l []any
	require.NoError(t, json.Unmarshal(r.body, &l), string(r.body))
	return l
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, header ...string) response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: raw}
}

func TestAccountEndpoints(t *testing.T) {
	rec := &recorder{}
	srv := newTestServer(t, rec, nil)

	created := do(t, srv, http.MethodPost, "/account", map[string]any{
		"name": "test-a", "password": "password1", "email": "a@example.com",
	})
	require.Equal(t, http.StatusCreated, created.status, created.text())
	id := created.text()

	auth := do(t, srv, http.MethodPost, "/auth", map[string]any{"name": "test-a", "password": "password1"})
	assert.Equal(t, http.StatusOK, auth.status)
	assert.Equal(t, id, auth.text())

	read := do(t, srv, http.MethodGet, "/account/"+id, nil)
	require.Equal(t, http.StatusOK, read.status)
	doc := read.doc(t)
	assert.Equal(t, "test-a", doc["name"])
	assert.Equal(t, "a@example.com", doc["email"])
	assert.NotContains(t, doc, "hash")
	assert.NotContains(t, doc, "salt")

	self := do(t, srv, http.MethodGet, "/account", nil, identityHeader, id)
	require.Equal(t, http.StatusOK, self.status)
	assert.Equal(t, id, self.doc(t)["id"])

	patched := do(t, srv, http.MethodPatch, "/account/"+id, map[string]any{"email": nil})
	assert.Equal(t, http.StatusNoContent, patched.status)
	assert.NotContains(t, do(t, srv, http.MethodGet, "/account/"+id, nil).doc(t), "email")

	assert.Equal(t, http.StatusNoContent,
		do(t, srv, http.MethodPut, "/account/"+id+"/password", map[string]any{"password": "password2"}).status)
	assert.Equal(t, http.StatusNoContent,
		do(t, srv, http.MethodPut, "/account/"+id+"/login-key", map[string]any{"name": "test-b"}).status)

	auth = do(t, srv, http.MethodPost, "/auth", map[string]any{"name": "test-b", "password": "password2"})
	assert.Equal(t, http.StatusOK, auth.status)

	list := do(t, srv, http.MethodGet, `/accounts?filter=name+%3D+%22test-*%22&order_by=name`, nil)
	require.Equal(t, http.StatusOK, list.status)
	assert.Len(t, list.list(t), 1)

	assert.Equal(t, []string{"ok", "ok"}, rec.ops["http POST /auth"])
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t, &recorder{}, nil)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/account", map[string]any{"name": "test-a", "password": "password1"}).status)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		check  func(t *testing.T, doc map[string]any)
	}{
		{
			name:   "conflict carries the offending key",
			method: http.MethodPost, path: "/account",
			body:   map[string]any{"name": "test-a", "password": "password1"},
			status: http.StatusConflict,
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "conflict", doc["error"])
				assert.Equal(t, "name", doc["field"])
				assert.Equal(t, "test-a", doc["value"])
			},
		},
		{
			name:   "validation lists violations",
			method: http.MethodPost, path: "/account",
			body:   map[string]any{"name": "test-b", "password": "short"},
			status: http.StatusBadRequest,
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "validation", doc["error"])
				assert.Equal(t, []any{map[string]any{"field": "password", "rule": "min", "param": "8"}}, doc["violations"])
			},
		},
		{
			name:   "body must be an object",
			method: http.MethodPost, path: "/account",
			body:   `["name"]`,
			status: http.StatusBadRequest,
		},
		{
			name:   "wrong password",
			method: http.MethodPost, path: "/auth",
			body:   map[string]any{"name": "test-a", "password": "password2"},
			status: http.StatusUnauthorized,
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "Authentication failed", doc["message"])
			},
		},
		{
			name:   "unknown login key",
			method: http.MethodPost, path: "/auth",
			body:   map[string]any{"name": "nobody", "password": "password1"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "empty login key",
			method: http.MethodPost, path: "/auth",
			body:   map[string]any{"name": "", "password": "password1"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "missing password",
			method: http.MethodPost, path: "/auth",
			body:   map[string]any{"name": "test-a"},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed id",
			method: http.MethodGet, path: "/account/nope",
			status: http.StatusNotFound,
		},
		{
			name:   "no identity",
			method: http.MethodGet, path: "/account",
			status: http.StatusNotFound,
		},
		{
			name:   "bad page",
			method: http.MethodGet, path: "/accounts?page=x",
			status: http.StatusBadRequest,
		},
		{
			name:   "bad filter",
			method: http.MethodGet, path: "/accounts?filter=%28",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, resp.status, resp.text())
			if tt.check != nil {
				tt.check(t, resp.doc(t))
			}
		})
	}
}

func TestGroupAndMembershipEndpoints(t *testing.T) {
	srv := newTestServer(t, &recorder{}, nil)

	account := do(t, srv, http.MethodPost, "/account", map[string]any{"name": "test-a", "password": "password1"}).text()
	created := do(t, srv, http.MethodPost, "/group", map[string]any{"name": "Admins", "code": "admins"})
	require.Equal(t, http.StatusCreated, created.status)
	group := created.text()

	dup := do(t, srv, http.MethodPost, "/group", map[string]any{"name": "Other", "code": "admins"})
	assert.Equal(t, http.StatusConflict, dup.status)
	assert.Equal(t, "code", dup.doc(t)["field"])

	assert.Equal(t, http.StatusNoContent,
		do(t, srv, http.MethodPut, "/group/"+group+"/accounts/"+account, nil).status)

	member := do(t, srv, http.MethodGet, "/account/"+account+"/groups?code=users&code=admins", nil)
	require.Equal(t, http.StatusOK, member.status)
	assert.Equal(t, true, member.doc(t)["member"])

	details := do(t, srv, http.MethodGet, "/group/"+group, nil).doc(t)
	accounts, _ := details["accounts"].([]any)
	require.Len(t, accounts, 1)

	assert.Equal(t, http.StatusNoContent,
		do(t, srv, http.MethodPatch, "/group/"+group, map[string]any{"name": "Operators"}).status)
	listing := do(t, srv, http.MethodGet, "/groups?order_by=code", nil).list(t)
	require.Len(t, listing, 1)
	assert.Equal(t, "Operators", listing[0].(map[string]any)["name"])

	report := do(t, srv, http.MethodPost, "/maintenance/reconcile", nil)
	require.Equal(t, http.StatusOK, report.status)
	assert.Equal(t, float64(0), report.doc(t)["groups_fixed"])

	assert.Equal(t, http.StatusNoContent,
		do(t, srv, http.MethodDelete, "/group/"+group+"/accounts/"+account, nil).status)
	member = do(t, srv, http.MethodGet, "/account/"+account+"/groups?code=admins", nil)
	assert.Equal(t, false, member.doc(t)["member"])

	removed := do(t, srv, http.MethodDelete, "/group/"+group, nil)
	require.Equal(t, http.StatusOK, removed.status)
	assert.Equal(t, "admins", removed.doc(t)["code"])
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/group/"+group, nil).status)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &recorder{}, nil)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil).status)

	metrics := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.text(), "# metrics")

	down := newTestServer(t, &recorder{}, func(context.Context) error { return errors.New("db down") })
	resp := do(t, down, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Equal(t, "unavailable", resp.doc(t)["status"])
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(0))
	assert.Equal(t, "ok", outcome(http.StatusNoContent))
	assert.Equal(t, "validation", outcome(http.StatusBadRequest))
	assert.Equal(t, "wrong", outcome(http.StatusUnauthorized))
	assert.Equal(t, "unknown", outcome(http.StatusNotFound))
	assert.Equal(t, "conflict", outcome(http.StatusConflict))
	assert.Equal(t, "internal", outcome(http.StatusServiceUnavailable))
}
