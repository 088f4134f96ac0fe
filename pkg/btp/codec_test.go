package btp

import (
	"bytes"
	"errors"
	"testing"
)

// TestComplianceVectors reproduces the bit-exact wire-format table: a
// compliance test must reproduce these byte sequences.
func TestComplianceVectors(t *testing.T) {
	t.Run("handshake request version=[4] mtu=185 window=6", func(t *testing.T) {
		want := []byte{0x65, 0x6c, 0x04, 0x00, 0x00, 0x00, 0xb9, 0x00, 0x06}
		got, err := EncodeHandshakeRequest(HandshakeRequest{Versions: []uint8{4}, AttMtu: 185, ClientWindowSize: 6})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
		req, err := DecodeHandshakeRequest(want)
		if err != nil {
			t.Fatal(err)
		}
		if len(req.Versions) != 1 || req.Versions[0] != 4 || req.AttMtu != 185 || req.ClientWindowSize != 6 {
			t.Fatalf("decoded %+v", req)
		}
	})

	t.Run("handshake request versions=[4,5,6]", func(t *testing.T) {
		want := []byte{0x65, 0x6c, 0x04, 0x56, 0x00, 0x00, 0xb9, 0x00, 0x06}
		got, err := EncodeHandshakeRequest(HandshakeRequest{Versions: []uint8{4, 5, 6}, AttMtu: 185, ClientWindowSize: 6})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
		req, err := DecodeHandshakeRequest(want)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(req.Versions, []uint8{4, 5, 6}) {
			t.Fatalf("decoded versions %v", req.Versions)
		}
	})

	t.Run("handshake response version=4 mtu=256 window=6", func(t *testing.T) {
		want := []byte{0x65, 0x6c, 0x04, 0x00, 0x01, 0x06}
		got := EncodeHandshakeResponse(HandshakeResponse{Version: 4, AttMtu: 256, WindowSize: 6})
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
		resp, err := DecodeHandshakeResponse(want)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Version != 4 || resp.AttMtu != 256 || resp.WindowSize != 6 {
			t.Fatalf("decoded %+v", resp)
		}
	})

	t.Run("handshake response mtu=100", func(t *testing.T) {
		want := []byte{0x65, 0x6c, 0x04, 0x64, 0x00, 0x06}
		got := EncodeHandshakeResponse(HandshakeResponse{Version: 4, AttMtu: 100, WindowSize: 6})
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
	})

	payload := []byte{0xaa, 0xbb}

	t.Run("data frame end-only seq=0 no ack", func(t *testing.T) {
		want := append([]byte{0x04, 0x00}, payload...)
		got, err := EncodeDataFrame(DataFrame{IsEnd: true, SequenceNumber: 0, Payload: payload})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
		f, err := DecodeDataFrame(want)
		if err != nil {
			t.Fatal(err)
		}
		if !f.IsEnd || f.IsBegin || f.HasAck || !bytes.Equal(f.Payload, payload) {
			t.Fatalf("decoded %+v", f)
		}
	})

	t.Run("data frame begin+end+ack seq=0 ack=0 msgLen=0x44", func(t *testing.T) {
		want := append([]byte{0x0d, 0x00, 0x00, 0x44, 0x00}, payload...)
		ack := uint8(0)
		msgLen := uint16(0x44)
		got, err := EncodeDataFrame(DataFrame{
			IsBegin: true, IsEnd: true, HasAck: true,
			AckNumber: &ack, SequenceNumber: 0, MessageLength: &msgLen, Payload: payload,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
		f, err := DecodeDataFrame(want)
		if err != nil {
			t.Fatal(err)
		}
		if !f.IsBegin || !f.IsEnd || !f.HasAck || *f.AckNumber != 0 || *f.MessageLength != 0x44 {
			t.Fatalf("decoded %+v", f)
		}
	})

	t.Run("data frame begin+end seq=0 msgLen=0x44", func(t *testing.T) {
		want := append([]byte{0x05, 0x00, 0x44, 0x00}, payload...)
		msgLen := uint16(0x44)
		got, err := EncodeDataFrame(DataFrame{IsBegin: true, IsEnd: true, SequenceNumber: 0, MessageLength: &msgLen, Payload: payload})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
	})

	t.Run("data frame end+ack seq=0 ack=0", func(t *testing.T) {
		want := append([]byte{0x0c, 0x00, 0x00}, payload...)
		ack := uint8(0)
		got, err := EncodeDataFrame(DataFrame{IsEnd: true, HasAck: true, AckNumber: &ack, SequenceNumber: 0, Payload: payload})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got % x, want % x", got, want)
		}
	})
}

// TestDataFrameRoundTrip is the property test from the testable
// properties section: decode(encode(F)) = F for any F with matching
// (hasAck, isBegin) fields.
func TestDataFrameRoundTrip(t *testing.T) {
	ack := uint8(42)
	msgLen := uint16(9)
	opcode := uint8(0x6c)

	cases := []DataFrame{
		{IsEnd: true, SequenceNumber: 3, Payload: []byte{1, 2, 3}},
		{IsBegin: true, IsEnd: true, SequenceNumber: 7, MessageLength: &msgLen, Payload: []byte("123456789")},
		{HasAck: true, AckNumber: &ack, SequenceNumber: 12, Payload: []byte{9}},
		{IsManagement: true, ManagementOpcode: &opcode, SequenceNumber: 1},
		{IsHandshake: true, SequenceNumber: 0},
	}

	for i, f := range cases {
		encoded, err := EncodeDataFrame(f)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		decoded, err := DecodeDataFrame(encoded)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}

		if decoded.IsHandshake != f.IsHandshake || decoded.IsManagement != f.IsManagement ||
			decoded.HasAck != f.HasAck || decoded.IsBegin != f.IsBegin || decoded.IsEnd != f.IsEnd ||
			decoded.SequenceNumber != f.SequenceNumber {
			t.Fatalf("case %d: flags/seq mismatch: got %+v want %+v", i, decoded, f)
		}
		if !bytes.Equal(decoded.Payload, f.Payload) && !(len(decoded.Payload) == 0 && len(f.Payload) == 0) {
			t.Fatalf("case %d: payload mismatch: got %v want %v", i, decoded.Payload, f.Payload)
		}
		if decoded.IsContinue != !decoded.IsBegin {
			t.Fatalf("case %d: IsContinue not recomputed as !IsBegin", i)
		}
	}
}

func TestEncodeDataFrameFlagMismatch(t *testing.T) {
	ack := uint8(1)
	if _, err := EncodeDataFrame(DataFrame{HasAck: true}); !errors.Is(err, ErrAckFlagMismatch) {
		t.Fatalf("want ErrAckFlagMismatch, got %v", err)
	}
	if _, err := EncodeDataFrame(DataFrame{AckNumber: &ack}); !errors.Is(err, ErrAckFlagMismatch) {
		t.Fatalf("want ErrAckFlagMismatch, got %v", err)
	}
	msgLen := uint16(1)
	if _, err := EncodeDataFrame(DataFrame{IsBegin: true}); !errors.Is(err, ErrBeginFlagMismatch) {
		t.Fatalf("want ErrBeginFlagMismatch, got %v", err)
	}
	if _, err := EncodeDataFrame(DataFrame{MessageLength: &msgLen}); !errors.Is(err, ErrBeginFlagMismatch) {
		t.Fatalf("want ErrBeginFlagMismatch, got %v", err)
	}
}

func TestDecodeHandshakeRequestRejectsBadMagic(t *testing.T) {
	bad := []byte{0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xb9, 0x00, 0x06}
	if _, err := DecodeHandshakeRequest(bad); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("want ErrBadMagic, got %v", err)
	}
}

func TestDecodeHandshakeRequestRejectsNoVersions(t *testing.T) {
	bad := []byte{0x65, 0x6c, 0x00, 0x00, 0x00, 0x00, 0xb9, 0x00, 0x06}
	if _, err := DecodeHandshakeRequest(bad); !errors.Is(err, ErrNoValidVersions) {
		t.Fatalf("want ErrNoValidVersions, got %v", err)
	}
}

func TestDecodeDataFrameTooShort(t *testing.T) {
	if _, err := DecodeDataFrame([]byte{0x0d}); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("want ErrFrameTooShort, got %v", err)
	}
}
