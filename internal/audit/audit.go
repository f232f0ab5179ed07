// Package audit define el sink append-only de eventos de seguridad.
// El core solo conoce la interfaz Sink; dónde terminan las entradas
// (log, archivo, colector externo) es responsabilidad de quien lo arma.
package audit

import "time"

// Event identifica el tipo de evento de seguridad.
type Event string

const (
	EventUserRegistered  Event = "user_registered"
	EventLoginSucceeded  Event = "login_succeeded"
	EventLoginFailed     Event = "login_failed"
	EventAccountLocked   Event = "account_locked"
	EventMFAEnrolled     Event = "mfa_enrolled"
	EventMFAConfirmed    Event = "mfa_confirmed"
	EventMFADisabled     Event = "mfa_disabled"
	EventMFAFailed       Event = "mfa_failed"
	EventTokenRefreshed  Event = "token_refreshed"
	EventTokenReuse      Event = "token_reuse_detected"
	EventLoggedOut       Event = "logged_out"
	EventPasswordChanged Event = "password_changed"
	EventUserDeactivated Event = "user_deactivated"
)

// Outcome clasifica el resultado del evento.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Entry es un registro inmutable. Nunca se muta ni se borra desde el core.
type Entry struct {
	Timestamp time.Time
	Event     Event
	UserID    string // opcional: vacío cuando no se resolvió usuario
	Outcome   Outcome
	Metadata  map[string]any
}

// Sink recibe entradas de auditoría. Los appends pueden ser desordenados
// entre sí pero siempre causalmente posteriores al evento que describen.
type Sink interface {
	Append(e Entry)
}

// Emit construye la entrada con timestamp actual y la envía al sink.
// Tolera sink nil para no ensuciar los services con chequeos.
func Emit(s Sink, ev Event, userID string, outcome Outcome, metadata map[string]any) {
	if s == nil {
		return
	}
	s.Append(Entry{
		Timestamp: time.Now().UTC(),
		Event:     ev,
		UserID:    userID,
		Outcome:   outcome,
		Metadata:  metadata,
	})
}

// Multi reparte cada entrada a varios sinks (ej: log + métricas).
type Multi []Sink

func (m Multi) Append(e Entry) {
	for _, s := range m {
		if s != nil {
			s.Append(e)
		}
	}
}
