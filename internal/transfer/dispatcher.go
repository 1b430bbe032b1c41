package transfer

import (
	"github.com/rs/zerolog"

	"example.com/inklink/internal/protocol"
)

// Dispatcher is the single entry point for inbound byte buffers from the
// transport collaborator. It is the only component that calls both the
// frame codec and the session, which keeps decoding and transfer logic
// separately testable.
//
// The transport guarantees OnInboundFrame is never invoked reentrantly
// and delivers buffers in arrival order; the dispatcher adds no ordering
// of its own.
type Dispatcher struct {
	session *Session
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher feeding the given session. The
// dispatcher holds a non-owning reference; it must not outlive the
// session.
func NewDispatcher(s *Session, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{session: s, log: log}
}

// OnInboundFrame decodes one raw inbound buffer and forwards the result.
// A buffer that fails to decode reaches the session only through its
// error path, so malformed input can never be partially applied to a
// reassembler.
func (d *Dispatcher) OnInboundFrame(buf []byte) {
	frame, err := protocol.DecodeFrame(buf)
	if err != nil {
		d.log.Warn().Err(err).Int("len", len(buf)).Msg("inbound frame rejected")
		d.session.FailInbound(err)
		return
	}
	d.log.Debug().Stringer("status", frame.Status()).Int("len", len(buf)).Msg("inbound frame")
	d.session.HandleFrame(frame)
}
