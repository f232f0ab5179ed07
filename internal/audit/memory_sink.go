package audit

import "sync"

// MemorySink acumula entradas en memoria. Pensado para tests y para
// inspección en proceso; mantiene como máximo max entradas (las más nuevas).
type MemorySink struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

// NewMemorySink crea un sink en memoria. max <= 0 significa sin límite.
func NewMemorySink(max int) *MemorySink {
	return &MemorySink{max: max}
}

func (m *MemorySink) Append(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
}

// Entries retorna una copia de las entradas acumuladas.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ByEvent filtra las entradas de un tipo dado.
func (m *MemorySink) ByEvent(ev Event) []Entry {
	var out []Entry
	for _, e := range m.Entries() {
		if e.Event == ev {
			out = append(out, e)
		}
	}
	return out
}
