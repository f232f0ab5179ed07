package audit

import (
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"go.uber.org/zap"
)

// ZapSink escribe cada entrada como una línea estructurada en el logger.
type ZapSink struct {
	L *zap.Logger
}

// NewZapSink crea un sink sobre el logger dado (nil = singleton).
func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = logger.Named("audit")
	}
	return &ZapSink{L: l}
}

func (z *ZapSink) Append(e Entry) {
	fields := []zap.Field{
		zap.Time("ts", e.Timestamp),
		zap.String("event", string(e.Event)),
		zap.String("outcome", string(e.Outcome)),
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	if len(e.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", e.Metadata))
	}
	z.L.Info("audit", fields...)
}
