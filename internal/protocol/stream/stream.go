// Package stream turns a byte-oriented transport into a lazy sequence of
// decoded fields, each tagged with its enclosing packet's type, id, and
// timestamp.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/crfsradio/ncp/internal/protocol/field"
	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/packet"
)

// ErrUnexpectedEOF is returned when the transport closes in the middle of
// a packet, as opposed to cleanly between packets (which yields io.EOF).
var ErrUnexpectedEOF = errors.New("stream: transport closed mid-packet")

// Meta is the packet-level context a field is tagged with on delivery.
type Meta struct {
	Type      ident.ID
	ID        uint32
	Timestamp packet.Timestamp
}

// Item is one decoded field plus the packet metadata it arrived under.
type Item struct {
	Meta  Meta
	Field field.Field
}

// Reader produces a finite-until-close sequence of Items from r.
type Reader struct {
	r       io.Reader
	pending []Item
}

// New wraps r (typically a net.Conn or bufio.Reader) in a field stream.
func New(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next decoded field. It returns io.EOF when the
// transport closes cleanly between packets, or an error wrapping
// ErrUnexpectedEOF when it closes mid-packet.
func (s *Reader) Next() (Item, error) {
	for len(s.pending) == 0 {
		if err := s.fillFromNextPacket(); err != nil {
			return Item{}, err
		}
	}
	item := s.pending[0]
	s.pending = s.pending[1:]
	return item, nil
}

// fillFromNextPacket reads and decodes one packet, populating s.pending
// with its fields. It may read zero fields (an empty-bodied packet), in
// which case the caller's loop reads another packet.
func (s *Reader) fillFromNextPacket() error {
	var header [packet.HeaderLen]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("%w: %v", ErrUnexpectedEOF, err)
	}

	sizeWords := binary.LittleEndian.Uint32(header[8:12])
	totalLen := int(sizeWords) * 4
	if totalLen < packet.HeaderLen+packet.FooterLen {
		return fmt.Errorf("%w: packet size field %d too small", packet.ErrMalformedPacket, totalLen)
	}

	rest := make([]byte, totalLen-packet.HeaderLen)
	if _, err := io.ReadFull(s.r, rest); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedEOF, err)
	}

	buf := make([]byte, 0, totalLen)
	buf = append(buf, header[:]...)
	buf = append(buf, rest...)

	pkt, err := packet.Decode(buf)
	if err != nil {
		return err
	}

	meta := Meta{Type: pkt.Type, ID: pkt.ID, Timestamp: pkt.Timestamp}
	items := make([]Item, 0, len(pkt.Fields))
	for _, f := range pkt.Fields {
		items = append(items, Item{Meta: meta, Field: f})
	}
	s.pending = items
	return nil
}
