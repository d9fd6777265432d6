// Package packet implements the NCP packet codec: a fixed 32-byte header,
// a body of fields, and an 8-byte footer carrying a CRC-32.
package packet

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/crfsradio/ncp/internal/protocol/field"
	"github.com/crfsradio/ncp/internal/protocol/ident"
)

const (
	HeaderLen = 32
	FooterLen = 8
)

// Magic header/footer markers.
var (
	HeaderMagic = [4]byte{0xDD, 0xCC, 0xBB, 0xAA}
	FooterMagic = [4]byte{0xAA, 0xBB, 0xCC, 0xDD}
)

// FormatID is the constant 4-byte format tag carried in every header.
var FormatID = ident.ID{'N', 'C', 'P', 'L'}

var ErrMalformedPacket = fmt.Errorf("packet: malformed packet")

// Timestamp is seconds-since-epoch plus nanoseconds, stored as two signed
// 32-bit little-endian words on the wire.
type Timestamp struct {
	Seconds     int32
	Nanoseconds int32
}

// Packet is the outermost framed unit: a type identifier, a connection
// assigned id, a timestamp, an opaque info word, and an ordered field list.
type Packet struct {
	Type      ident.ID
	ID        uint32
	Timestamp Timestamp
	Info      uint32
	Fields    []field.Field
}

// Encode renders p to its wire form, including a freshly computed CRC-32.
func Encode(p Packet) ([]byte, error) {
	var body []byte
	for _, f := range p.Fields {
		var err error
		body, err = field.Encode(body, f)
		if err != nil {
			return nil, err
		}
	}

	totalLen := HeaderLen + len(body) + FooterLen
	if totalLen%4 != 0 {
		return nil, fmt.Errorf("%w: unaligned packet length %d", ErrMalformedPacket, totalLen)
	}
	sizeWords := uint32(totalLen / 4)

	out := make([]byte, HeaderLen, totalLen)
	copy(out[0:4], HeaderMagic[:])
	copy(out[4:8], p.Type.Bytes())
	binary.LittleEndian.PutUint32(out[8:12], sizeWords)
	binary.LittleEndian.PutUint32(out[12:16], p.ID)
	binary.LittleEndian.PutUint32(out[16:20], p.Info)
	binary.LittleEndian.PutUint32(out[20:24], uint32(p.Timestamp.Seconds))
	binary.LittleEndian.PutUint32(out[24:28], uint32(p.Timestamp.Nanoseconds))
	copy(out[28:32], FormatID.Bytes())
	out = append(out, body...)

	crc := crc32.ChecksumIEEE(out)
	out = append(out, FooterMagic[:]...)
	crcBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBuf, crc)
	out = append(out, crcBuf...)
	return out, nil
}

// Decode parses one complete packet (header through footer) from b. b must
// contain exactly one packet's worth of bytes, as determined by the caller
// (see stream.Reader, which frames packets off the wire before calling
// this).
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderLen+FooterLen {
		return Packet{}, fmt.Errorf("%w: short packet", ErrMalformedPacket)
	}
	var magic [4]byte
	copy(magic[:], b[0:4])
	if magic != HeaderMagic {
		return Packet{}, fmt.Errorf("%w: bad header magic", ErrMalformedPacket)
	}
	typeID, err := ident.FromBytes(b[4:8])
	if err != nil {
		return Packet{}, fmt.Errorf("%w: type: %v", ErrMalformedPacket, err)
	}
	sizeWords := binary.LittleEndian.Uint32(b[8:12])
	totalLen := int(sizeWords) * 4
	if totalLen != len(b) {
		return Packet{}, fmt.Errorf("%w: size field %d does not match %d bytes", ErrMalformedPacket, totalLen, len(b))
	}
	id := binary.LittleEndian.Uint32(b[12:16])
	info := binary.LittleEndian.Uint32(b[16:20])
	seconds := int32(binary.LittleEndian.Uint32(b[20:24]))
	nanos := int32(binary.LittleEndian.Uint32(b[24:28]))
	// b[28:32] is the format_id; tolerated but not enforced, matching the
	// codec's general tolerant-read, strict-write posture.

	bodyEnd := len(b) - FooterLen
	body := b[HeaderLen:bodyEnd]

	var footerMagic [4]byte
	copy(footerMagic[:], b[bodyEnd:bodyEnd+4])
	if footerMagic != FooterMagic {
		return Packet{}, fmt.Errorf("%w: bad footer magic", ErrMalformedPacket)
	}
	crc := binary.LittleEndian.Uint32(b[bodyEnd+4 : bodyEnd+8])
	if crc != 0 {
		want := crc32.ChecksumIEEE(b[:bodyEnd])
		if crc != want {
			return Packet{}, fmt.Errorf("%w: crc mismatch", ErrMalformedPacket)
		}
	}

	fields, err := decodeFields(body)
	if err != nil {
		return Packet{}, err
	}

	return Packet{
		Type:      typeID,
		ID:        id,
		Info:      info,
		Timestamp: Timestamp{Seconds: seconds, Nanoseconds: nanos},
		Fields:    fields,
	}, nil
}

func decodeFields(body []byte) ([]field.Field, error) {
	var fields []field.Field
	offset := 0
	for offset < len(body) {
		f, consumed, err := field.Decode(body[offset:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
		}
		fields = append(fields, f)
		offset += consumed
	}
	return fields, nil
}
