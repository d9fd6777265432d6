package field

import (
	"testing"

	"github.com/crfsradio/ncp/internal/protocol/ident"
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

func TestRoundTripField(t *testing.T) {
	f := New(mustID(t, "TIME"), mustID(t, "TIME"), 7)
	if err := f.Set(mustID(t, "SAMP"), value.I32(1024)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.Set(mustID(t, "NAME"), value.STR("rx0")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	enc, err := Encode(nil, f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc)%4 != 0 {
		t.Fatalf("encoded length %d not aligned", len(enc))
	}

	decoded, consumed, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(enc) {
		t.Fatalf("consumed %d, want %d", consumed, len(enc))
	}
	if decoded.Name != f.Name || decoded.TypeID != f.TypeID || decoded.FieldID != f.FieldID {
		t.Fatalf("header mismatch: got %+v want %+v", decoded, f)
	}
	if len(decoded.Params) != 2 {
		t.Fatalf("param count = %d, want 2", len(decoded.Params))
	}
	// Parameter order must survive the round trip.
	if decoded.Params[0].ID != mustID(t, "SAMP") || decoded.Params[1].ID != mustID(t, "NAME") {
		t.Fatalf("param order not preserved: %+v", decoded.Params)
	}
	got, ok := decoded.Get(mustID(t, "SAMP"))
	if !ok || !value.Equal(got, value.I32(1024)) {
		t.Fatalf("SAMP = %+v, ok=%v", got, ok)
	}
}

func TestSetRejectsDuplicateParam(t *testing.T) {
	f := New(mustID(t, "DSPC"), mustID(t, "DSPC"), 1)
	if err := f.Set(mustID(t, "SAMP"), value.I32(1)); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := f.Set(mustID(t, "SAMP"), value.I32(2)); err == nil {
		t.Fatal("expected ErrDuplicateParam on second Set")
	}
}

func TestEmptyFieldRoundTrip(t *testing.T) {
	f := New(mustID(t, "LINK"), mustID(t, "LINK"), 0)
	enc, err := Encode(nil, f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, consumed, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(enc) || len(decoded.Params) != 0 {
		t.Fatalf("unexpected decode result: %+v consumed=%d", decoded, consumed)
	}
}

func TestDecodeSizeMismatchIsMalformed(t *testing.T) {
	f := New(mustID(t, "TIME"), mustID(t, "TIME"), 1)
	_ = f.Set(mustID(t, "SAMP"), value.I32(1))
	enc, err := Encode(nil, f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Truncate the buffer so the declared size no longer fits.
	truncated := enc[:len(enc)-4]
	if _, _, err := Decode(truncated); err == nil {
		t.Fatal("expected malformed field error")
	}
}
