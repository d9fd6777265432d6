package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/crfsradio/ncp/internal/protocol/field"
	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/packet"
	"github.com/crfsradio/ncp/internal/protocol/value"
)

func mustID(t *testing.T, s string) ident.ID {
	t.Helper()
	id, err := ident.New(s)
	if err != nil {
		t.Fatalf("ident.New(%q): %v", s, err)
	}
	return id
}

func TestNextYieldsFieldsInOrderAcrossPackets(t *testing.T) {
	f1 := field.New(mustID(t, "A"), mustID(t, "A"), 1)
	_ = f1.Set(mustID(t, "P1"), value.I32(1))
	f2 := field.New(mustID(t, "B"), mustID(t, "B"), 2)
	_ = f2.Set(mustID(t, "P2"), value.I32(2))
	f3 := field.New(mustID(t, "C"), mustID(t, "C"), 3)
	_ = f3.Set(mustID(t, "P3"), value.I32(3))

	p1 := packet.Packet{Type: mustID(t, "DSPC"), ID: 10, Fields: []field.Field{f1, f2}}
	p2 := packet.Packet{Type: mustID(t, "DSPC"), ID: 11, Fields: []field.Field{f3}}

	var buf bytes.Buffer
	for _, p := range []packet.Packet{p1, p2} {
		enc, err := packet.Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		buf.Write(enc)
	}

	r := New(&buf)
	var names []string
	for i := 0; i < 3; i++ {
		item, err := r.Next()
		if err != nil {
			t.Fatalf("Next() #%d: %v", i, err)
		}
		names = append(names, item.Field.Name.String())
	}
	want := []string{"A", "B", "C"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after transport closes cleanly, got %v", err)
	}
}

func TestNextTagsFieldWithPacketMeta(t *testing.T) {
	f := field.New(mustID(t, "A"), mustID(t, "A"), 1)
	p := packet.Packet{Type: mustID(t, "DSPC"), ID: 42, Fields: []field.Field{f}}
	enc, err := packet.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	r := New(bytes.NewReader(enc))
	item, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if item.Meta.ID != 42 || item.Meta.Type.String() != "DSPC" {
		t.Fatalf("meta = %+v", item.Meta)
	}
}

func TestNextMidPacketCloseIsUnexpectedEOF(t *testing.T) {
	f := field.New(mustID(t, "A"), mustID(t, "A"), 1)
	_ = f.Set(mustID(t, "P1"), value.I32(1))
	p := packet.Packet{Type: mustID(t, "DSPC"), ID: 1, Fields: []field.Field{f}}
	enc, err := packet.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	r := New(bytes.NewReader(enc[:len(enc)-2]))
	if _, err := r.Next(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestNextSkipsEmptyBodiedPackets(t *testing.T) {
	empty := packet.Packet{Type: mustID(t, "LINK"), ID: 1}
	f := field.New(mustID(t, "A"), mustID(t, "A"), 2)
	full := packet.Packet{Type: mustID(t, "DSPC"), ID: 2, Fields: []field.Field{f}}

	var buf bytes.Buffer
	for _, p := range []packet.Packet{empty, full} {
		enc, err := packet.Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		buf.Write(enc)
	}

	r := New(&buf)
	item, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if item.Meta.ID != 2 {
		t.Fatalf("expected the empty LINK packet to be skipped, got meta %+v", item.Meta)
	}
}
