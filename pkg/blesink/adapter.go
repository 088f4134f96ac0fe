package blesink

import (
	"context"

	"github.com/backkem/matter-btp/pkg/btp"
)

// UpperLayer adapts a Sink and a message-delivery callback into
// btp.UpperLayer, so callers can construct a session from any Sink
// without writing their own glue type.
type UpperLayer struct {
	Sink    Sink
	Deliver func([]byte)
}

func (u UpperLayer) WriteBle(ctx context.Context, b []byte) error { return u.Sink.Write(ctx, b) }
func (u UpperLayer) DisconnectBle()                               { u.Sink.Disconnect() }
func (u UpperLayer) DeliverMatterMessage(b []byte) {
	if u.Deliver != nil {
		u.Deliver(b)
	}
}

var _ btp.UpperLayer = UpperLayer{}
