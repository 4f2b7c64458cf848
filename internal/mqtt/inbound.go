package mqtt

import "log/slog"

// Message is an inbound publish queued for the next Pump.
type Message struct {
	Topic   string
	Payload []byte
}

// InboundHandler consumes messages drained by Pump.
type InboundHandler interface {
	HandleInbound(Message)
}

type HandlerFunc func(Message)

func (f HandlerFunc) HandleInbound(m Message) { f(m) }

// Discard logs inbound messages and otherwise ignores them.
type Discard struct {
	Logger *slog.Logger
}

func (d Discard) HandleInbound(m Message) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("received mqtt message", "topic", m.Topic, "payload", string(m.Payload))
}
