// Command btp-gateway is a small demo binary that negotiates a BTP
// session over an in-memory BLE pipe and exchanges one Matter message in
// each direction, then shuts down cleanly on SIGINT.
//
// It is a manual smoke test, not a production gateway: there is no real
// GATT transport, commissioning, or cluster handling here. The "central"
// side is played by raw frame bytes written directly onto the pipe,
// standing in for a real Matter controller.
//
// Usage:
//
//	btp-gateway [options]
//
// Options:
//
//	-mtu    advisory link MTU excluding the 3-byte GATT header (default: 100)
//	-window client window size to propose (default: 6)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/backkem/matter-btp/pkg/blesink"
	"github.com/backkem/matter-btp/pkg/btp"
	"github.com/pion/logging"
)

func main() {
	maxDataSize := flag.Int("mtu", 100, "advisory link MTU excluding the 3-byte GATT header")
	window := flag.Int("window", 6, "client window size to propose")
	flag.Parse()

	if err := run(*maxDataSize, uint8(*window)); err != nil {
		log.Fatalf("btp-gateway: %v", err)
	}
}

func run(maxDataSize int, window uint8) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loggerFactory := logging.NewDefaultLoggerFactory()

	pipe := blesink.NewPipe()
	defer pipe.Close()
	// centralConn plays the role of the remote Matter controller: it
	// writes raw handshake/data frame bytes and reads whatever the
	// peripheral's Engine writes back.
	_, centralConn := pipe.Endpoint0()
	peripheralSink, peripheralConn := pipe.Endpoint1()

	delivered := make(chan []byte, 1)
	peripheralUpper := blesink.UpperLayer{
		Sink:    peripheralSink,
		Deliver: func(b []byte) { delivered <- b },
	}

	req := btp.HandshakeRequest{
		Versions:         []uint8{btp.SupportedVersion},
		AttMtu:           185,
		ClientWindowSize: window,
	}
	reqBytes, err := btp.EncodeHandshakeRequest(req)
	if err != nil {
		return fmt.Errorf("encode handshake request: %w", err)
	}
	registry := btp.NewRegistry(0, loggerFactory)
	engine, err := registry.Open(ctx, btp.ConnID("central-1"), &maxDataSize, reqBytes, peripheralUpper, loggerFactory)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer registry.Close(btp.ConnID("central-1"))

	respBuf := make([]byte, 64)
	n, err := centralConn.Read(respBuf)
	if err != nil {
		return fmt.Errorf("read handshake response: %w", err)
	}
	resp, err := btp.DecodeHandshakeResponse(respBuf[:n])
	if err != nil {
		return fmt.Errorf("decode handshake response: %w", err)
	}
	log.Printf("negotiated: version=%d attMtu=%d window=%d", resp.Version, resp.AttMtu, resp.WindowSize)

	// Feed bytes arriving at the peripheral's end of the pipe into the
	// engine's inbound path, standing in for a platform BLE stack's
	// characteristic-write notification.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := peripheralConn.Read(buf)
			if err != nil {
				return
			}
			if err := engine.HandleIncomingBleData(ctx, append([]byte(nil), buf[:n]...)); err != nil {
				log.Printf("inbound frame rejected: %v", err)
				return
			}
		}
	}()

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := centralConn.Read(buf)
			if err != nil {
				return
			}
			log.Printf("central observed %d outbound bytes from peripheral", n)
		}
	}()

	// Central sends one single-segment Matter message inbound to the
	// peripheral's engine.
	inboundPayload := []byte("hello from the controller")
	msgLen := uint16(len(inboundPayload))
	frame := btp.DataFrame{
		IsBegin:        true,
		IsEnd:          true,
		SequenceNumber: 0,
		MessageLength:  &msgLen,
		Payload:        inboundPayload,
	}
	frameBytes, err := btp.EncodeDataFrame(frame)
	if err != nil {
		return fmt.Errorf("encode data frame: %w", err)
	}
	if _, err := centralConn.Write(frameBytes); err != nil {
		return fmt.Errorf("write data frame: %w", err)
	}

	select {
	case b := <-delivered:
		log.Printf("peripheral delivered %d bytes: %q", len(b), b)
	case <-ctx.Done():
		return ctx.Err()
	}

	outboundPayload := []byte("hello back from the device")
	if err := engine.SendMatterMessage(ctx, outboundPayload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	<-ctx.Done()
	return nil
}
