// Package metrics collects store and transport metrics and exposes them for
// Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records business events from the services and request outcomes
// from the transports.
type Collector struct {
	accountsCreated  prometheus.Counter
	credentialChecks *prometheus.CounterVec
	membership       *prometheus.CounterVec
	groupsRemoved    prometheus.Counter
	cascadeCleaned   prometheus.Counter
	requests         *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okaeri_accounts_created_total",
			Help: "Accounts created.",
		}),
		credentialChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okaeri_credential_checks_total",
			Help: "Credential checks by result.",
		}, []string{"result"}),
		membership: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okaeri_membership_changes_total",
			Help: "Membership changes by operation.",
		}, []string{"op"}),
		groupsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okaeri_groups_removed_total",
			Help: "Groups removed.",
		}),
		cascadeCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okaeri_group_removal_accounts_cleaned_total",
			Help: "Accounts whose group list was cleaned by a group removal.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okaeri_requests_total",
			Help: "Requests by transport, operation and outcome.",
		}, []string{"transport", "operation", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "okaeri_request_duration_seconds",
			Help:    "Request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport", "operation"}),
	}

	reg.MustRegister(
		c.accountsCreated,
		c.credentialChecks,
		c.membership,
		c.groupsRemoved,
		c.cascadeCleaned,
		c.requests,
		c.requestLatency,
	)

	return c
}

func (c *Collector) AccountCreated() {
	c.accountsCreated.Inc()
}

func (c *Collector) CredentialCheck(ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	c.credentialChecks.WithLabelValues(result).Inc()
}

func (c *Collector) MembershipChanged(op string) {
	c.membership.WithLabelValues(op).Inc()
}

func (c *Collector) GroupRemoved(cleanedAccounts int64) {
	c.groupsRemoved.Inc()
	c.cascadeCleaned.Add(float64(cleanedAccounts))
}

// RecordRequest records one served request. outcome is the error kind, or
// "ok".
func (c *Collector) RecordRequest(transport, operation, outcome string, d time.Duration) {
	c.requests.WithLabelValues(transport, operation, outcome).Inc()
	c.requestLatency.WithLabelValues(transport, operation).Observe(d.Seconds())
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
