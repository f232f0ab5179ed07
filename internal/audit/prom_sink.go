package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink cuenta los eventos de auditoría como serie Prometheus, para
// alertar sobre picos de login_failed o token_reuse_detected sin parsear
// logs. Se cuelga del mismo stream que los demás sinks vía Multi.
type PromSink struct {
	events *prometheus.CounterVec
}

// NewPromSink registra el counter en el registry (nil => default).
func NewPromSink(registry prometheus.Registerer) (*PromSink, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Eventos de autenticación por tipo y resultado",
	}, []string{"event", "outcome"})

	if err := registry.Register(events); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			events = already.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{events: events}, nil
}

// Append implementa Sink.
func (s *PromSink) Append(e Entry) {
	s.events.WithLabelValues(string(e.Event), string(e.Outcome)).Inc()
}
