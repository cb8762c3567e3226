package wire

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/crm"
)

// Decode adapts fn into a raw channel handler for the named event.
// Payloads that fail to parse are logged and dropped.
func (p Parser) Decode(name string, logger *zap.Logger, fn func(crm.Event)) func(json.RawMessage) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(raw json.RawMessage) {
		evt, err := p.Parse(name, raw)
		if err != nil {
			logger.Warn("dropping malformed event",
				zap.String("event", name),
				zap.Int("bytes", len(raw)),
				zap.Error(err),
			)
			return
		}
		fn(evt)
	}
}
