package btp

import "encoding/binary"

// Wire-format constants (Matter BTP, a.k.a. PAFTP).
const (
	magicByte0 = 0x65
	magicByte1 = 0x6c // also the required management opcode value

	handshakeRequestSize  = 9 // magic(2) + versions(4) + attMtu(2) + window(1)
	handshakeResponseSize = 6 // magic(2) + version(1) + attMtu(2) + window(1)

	maxVersionSlots = 4 // spec: 1-4 proposed versions, descending preference
)

// Data frame flag bits. The layout below is the one the wire-format
// compliance vectors in the spec's test table actually encode; it does
// not match the prose bit-letter ordering that names isHandshake as bit0.
const (
	flagIsBegin      = 0x01
	flagIsManagement = 0x02
	flagIsEnd        = 0x04
	flagHasAck       = 0x08
	flagIsHandshake  = 0x10
	flagIsContinue   = 0x20 // never encoded; derived as !isBegin
)

// HandshakeRequest is the peer's proposal, decoded from the wire.
type HandshakeRequest struct {
	Versions         []uint8 // 1-4 entries, descending preference
	AttMtu           uint16
	ClientWindowSize uint8
}

// EncodeHandshakeRequest serializes a request. Used by tests and by
// peers originating a handshake; the Session Engine itself never
// encodes a request, only decodes one.
func EncodeHandshakeRequest(r HandshakeRequest) ([]byte, error) {
	if len(r.Versions) == 0 || len(r.Versions) > maxVersionSlots {
		return nil, &CodecError{Op: "encode handshake request", Err: ErrNoValidVersions}
	}

	buf := make([]byte, handshakeRequestSize)
	buf[0] = magicByte0
	buf[1] = magicByte1

	// Pack versions into the 8-nibble stream (high nibble of byte0 first,
	// then low nibble of byte0, high of byte1, ...). The first nibble is
	// always left zero; versions start at the second nibble.
	nibbles := make([]uint8, 8)
	for i, v := range r.Versions {
		nibbles[i+1] = v
	}
	for i := 0; i < 4; i++ {
		buf[2+i] = (nibbles[2*i] << 4) | (nibbles[2*i+1] & 0x0f)
	}

	binary.LittleEndian.PutUint16(buf[6:8], r.AttMtu)
	buf[8] = r.ClientWindowSize

	return buf, nil
}

// DecodeHandshakeRequest parses a 9-byte handshake request.
func DecodeHandshakeRequest(data []byte) (HandshakeRequest, error) {
	if len(data) < handshakeRequestSize {
		return HandshakeRequest{}, &CodecError{Op: "decode handshake request", Err: ErrFrameTooShort}
	}
	if data[0] != magicByte0 || data[1] != magicByte1 {
		return HandshakeRequest{}, &CodecError{Op: "decode handshake request", Err: ErrBadMagic}
	}

	var versions []uint8
	for i := 0; i < 4; i++ {
		b := data[2+i]
		high := b >> 4
		low := b & 0x0f
		if high != 0 {
			versions = append(versions, high)
		}
		if low != 0 {
			versions = append(versions, low)
		}
	}
	if len(versions) == 0 {
		return HandshakeRequest{}, &CodecError{Op: "decode handshake request", Err: ErrNoValidVersions}
	}

	return HandshakeRequest{
		Versions:         versions,
		AttMtu:           binary.LittleEndian.Uint16(data[6:8]),
		ClientWindowSize: data[8],
	}, nil
}

// HandshakeResponse is what we send back to the peer after negotiation.
type HandshakeResponse struct {
	Version    uint8
	AttMtu     uint16
	WindowSize uint8
}

// EncodeHandshakeResponse serializes a 6-byte handshake response.
func EncodeHandshakeResponse(r HandshakeResponse) []byte {
	buf := make([]byte, handshakeResponseSize)
	buf[0] = magicByte0
	buf[1] = magicByte1
	buf[2] = r.Version
	binary.LittleEndian.PutUint16(buf[3:5], r.AttMtu)
	buf[5] = r.WindowSize
	return buf
}

// DecodeHandshakeResponse parses a 6-byte handshake response.
func DecodeHandshakeResponse(data []byte) (HandshakeResponse, error) {
	if len(data) < handshakeResponseSize {
		return HandshakeResponse{}, &CodecError{Op: "decode handshake response", Err: ErrFrameTooShort}
	}
	if data[0] != magicByte0 || data[1] != magicByte1 {
		return HandshakeResponse{}, &CodecError{Op: "decode handshake response", Err: ErrBadMagic}
	}
	return HandshakeResponse{
		Version:    data[2],
		AttMtu:     binary.LittleEndian.Uint16(data[3:5]),
		WindowSize: data[5],
	}, nil
}

// DataFrame is a single BTP segment: a data/ack packet carrying (part
// of) a Matter message, or a standalone ack.
//
// AckNumber, ManagementOpcode, and MessageLength are nil when absent.
// EncodeDataFrame fails with ErrAckFlagMismatch / ErrBeginFlagMismatch
// when HasAck / IsBegin disagrees with the presence of its field; it does
// not check IsManagement against ManagementOpcode, and writes the opcode
// only when IsManagement is set. DecodeDataFrame sets the optional fields
// from the flags.
type DataFrame struct {
	IsHandshake  bool
	IsManagement bool
	HasAck       bool
	IsBegin      bool
	IsEnd        bool
	// IsContinue is derived as !IsBegin; kept as a field for readability
	// at call sites, never independently encoded.
	IsContinue bool

	ManagementOpcode *uint8
	AckNumber        *uint8
	SequenceNumber   uint8
	MessageLength    *uint16
	Payload          []byte
}

// headerLen returns the number of header bytes this frame occupies,
// given its flags (not counting payload).
func (f *DataFrame) headerLen() int {
	n := 2 // flags + sequenceNumber
	if f.IsManagement {
		n++
	}
	if f.HasAck {
		n++
	}
	if f.IsBegin {
		n += 2
	}
	return n
}

// EncodeDataFrame serializes a data frame: flags, (opcode?), (ack?),
// seq, (msgLen?), payload — in that order.
func EncodeDataFrame(f DataFrame) ([]byte, error) {
	if f.HasAck != (f.AckNumber != nil) {
		return nil, &CodecError{Op: "encode data frame", Err: ErrAckFlagMismatch}
	}
	if f.IsBegin != (f.MessageLength != nil) {
		return nil, &CodecError{Op: "encode data frame", Err: ErrBeginFlagMismatch}
	}

	buf := make([]byte, f.headerLen()+len(f.Payload))
	off := 0

	var flags uint8
	if f.IsHandshake {
		flags |= flagIsHandshake
	}
	if f.IsManagement {
		flags |= flagIsManagement
	}
	if f.HasAck {
		flags |= flagHasAck
	}
	if f.IsBegin {
		flags |= flagIsBegin
	}
	if f.IsEnd {
		flags |= flagIsEnd
	}
	buf[off] = flags
	off++

	if f.IsManagement {
		buf[off] = *f.ManagementOpcode
		off++
	}
	if f.HasAck {
		buf[off] = *f.AckNumber
		off++
	}

	buf[off] = f.SequenceNumber
	off++

	if f.IsBegin {
		binary.LittleEndian.PutUint16(buf[off:off+2], *f.MessageLength)
		off += 2
	}

	copy(buf[off:], f.Payload)
	return buf, nil
}

// DecodeDataFrame parses a data frame. It recomputes IsContinue = !IsBegin.
func DecodeDataFrame(data []byte) (DataFrame, error) {
	if len(data) < 2 {
		return DataFrame{}, &CodecError{Op: "decode data frame", Err: ErrFrameTooShort}
	}

	flags := data[0]
	f := DataFrame{
		IsHandshake:  flags&flagIsHandshake != 0,
		IsManagement: flags&flagIsManagement != 0,
		HasAck:       flags&flagHasAck != 0,
		IsBegin:      flags&flagIsBegin != 0,
		IsEnd:        flags&flagIsEnd != 0,
	}
	f.IsContinue = !f.IsBegin

	off := 1

	if f.IsManagement {
		if len(data) < off+1 {
			return DataFrame{}, &CodecError{Op: "decode data frame", Err: ErrFrameTooShort}
		}
		opcode := data[off]
		f.ManagementOpcode = &opcode
		off++
	}

	if f.HasAck {
		if len(data) < off+1 {
			return DataFrame{}, &CodecError{Op: "decode data frame", Err: ErrFrameTooShort}
		}
		ack := data[off]
		f.AckNumber = &ack
		off++
	}

	if len(data) < off+1 {
		return DataFrame{}, &CodecError{Op: "decode data frame", Err: ErrFrameTooShort}
	}
	f.SequenceNumber = data[off]
	off++

	if f.IsBegin {
		if len(data) < off+2 {
			return DataFrame{}, &CodecError{Op: "decode data frame", Err: ErrFrameTooShort}
		}
		msgLen := binary.LittleEndian.Uint16(data[off : off+2])
		f.MessageLength = &msgLen
		off += 2
	}

	f.Payload = append([]byte(nil), data[off:]...)

	return f, nil
}
