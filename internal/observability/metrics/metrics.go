// Package metrics exposes Prometheus instruments for the auth core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the application-level instruments. A nil *Metrics is valid
// and records nothing, so library code can take it optionally.
type Metrics struct {
	signInAttempts *prometheus.CounterVec
	profileFetches *prometheus.CounterVec
	invitations    *prometheus.CounterVec
}

// New registers the instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signInAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minghua",
			Subsystem: "auth",
			Name:      "sign_in_attempts_total",
			Help:      "Sign-in attempts by outcome.",
		}, []string{"outcome"}),
		profileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minghua",
			Subsystem: "auth",
			Name:      "profile_fetches_total",
			Help:      "Profile fetches by outcome.",
		}, []string{"outcome"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minghua",
			Subsystem: "invitations",
			Name:      "events_total",
			Help:      "Invitation lifecycle events.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.signInAttempts, m.profileFetches, m.invitations)
	return m
}

func (m *Metrics) SignInAttempt(outcome string) {
	if m == nil {
		return
	}
	m.signInAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProfileFetch(outcome string) {
	if m == nil {
		return
	}
	m.profileFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InvitationEvent(event string) {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues(event).Inc()
}
