package blesink

import "context"

// GATTWriter is the minimal surface a platform BLE library's
// characteristic-write API needs to provide. WriteCharacteristic should
// perform (or queue) a GATT write-without-response to the already
// negotiated BTP characteristic.
type GATTWriter interface {
	WriteCharacteristic(ctx context.Context, b []byte) error
}

// GATTSink adapts a GATTWriter plus a disconnect func into a Sink. It is
// deliberately thin: characteristic discovery, MTU negotiation, and
// pairing all happen upstream of this type, by the caller.
type GATTSink struct {
	writer     GATTWriter
	disconnect func()
}

// NewGATTSink builds a Sink around an already-connected GATT
// characteristic writer. disconnect tears down the underlying BLE
// connection; it is called at most once by the owning Engine.
func NewGATTSink(writer GATTWriter, disconnect func()) *GATTSink {
	return &GATTSink{writer: writer, disconnect: disconnect}
}

func (g *GATTSink) Write(ctx context.Context, b []byte) error {
	return g.writer.WriteCharacteristic(ctx, b)
}

func (g *GATTSink) Disconnect() {
	if g.disconnect != nil {
		g.disconnect()
	}
}
