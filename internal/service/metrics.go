package service

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
)

const (
	opSignup  = "signup"
	opLogin   = "login"
	opRefresh = "refresh"
	opLogout  = "logout"
	opUser    = "user_data"
)

// Metrics counts session operations by outcome.
type Metrics struct {
	operations *prometheus.CounterVec
}

// NewMetrics registers auth_operations_total on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Authentication operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.operations)
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
}

// outcome is "success" or the lower-cased error code.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(apperrors.KindOf(err).Code())
}
