package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	LinksIssued            prometheus.Counter
	VerificationsFinalized prometheus.Counter
	VerificationsRejected  *prometheus.CounterVec
	RolesCreated           prometheus.Counter
	ProvisioningFailures   prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LinksIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "campusverify_links_issued_total",
			Help: "Total number of verification links issued",
		}),
		VerificationsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "campusverify_verifications_finalized_total",
			Help: "Total number of verifications that reached the finalized state",
		}),
		VerificationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campusverify_verifications_rejected_total",
			Help: "Total number of rejected verification attempts by reason",
		}, []string{"reason"}),
		RolesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "campusverify_roles_created_total",
			Help: "Total number of roles created in the chat platform",
		}),
		ProvisioningFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "campusverify_provisioning_failures_total",
			Help: "Total number of provisioning sub-operation failures",
		}),
	}
}

// RecordRejection increments the rejection counter for the given reason.
func (m *Metrics) RecordRejection(reason string) {
	m.VerificationsRejected.WithLabelValues(reason).Inc()
}
