// Package field implements the NCP field codec: a name, a sender-assigned
// id, a type identifier, and an ordered, duplicate-free set of named
// parameters.
package field

import (
	"encoding/binary"
	"fmt"

	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/value"
)

// HeaderLen is name(4) + size(4) + type_id(4) + field_id(4) + parameter_count(4).
const HeaderLen = 20

// FooterLen is the trailing checksum word.
const FooterLen = 4

var ErrMalformedField = fmt.Errorf("field: malformed field")

// ErrDuplicateParam is returned when a caller tries to add a parameter
// identifier that the field already carries.
var ErrDuplicateParam = fmt.Errorf("field: duplicate parameter id")

// Param is one named parameter value. Field preserves Param order on the
// wire exactly as parameters were added.
type Param struct {
	ID    ident.ID
	Value value.Value
}

// Field is one logical message: a name, a sender-assigned id, a type
// identifier, and an ordered parameter list.
type Field struct {
	Name    ident.ID
	TypeID  ident.ID
	FieldID uint32
	Params  []Param
}

// New constructs an empty field with the given name, type, and id.
func New(name, typeID ident.ID, fieldID uint32) Field {
	return Field{Name: name, TypeID: typeID, FieldID: fieldID}
}

// Set appends a parameter, returning ErrDuplicateParam if id is already
// present — parameter identifiers within a field must be unique.
func (f *Field) Set(id ident.ID, v value.Value) error {
	if _, ok := f.Get(id); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateParam, id)
	}
	f.Params = append(f.Params, Param{ID: id, Value: v})
	return nil
}

// Get returns the value for a parameter id, if present.
func (f Field) Get(id ident.ID) (value.Value, bool) {
	for _, p := range f.Params {
		if p.ID == id {
			return p.Value, true
		}
	}
	return value.Value{}, false
}

// Encode appends the wire form of f to dst and returns the result.
func Encode(dst []byte, f Field) ([]byte, error) {
	var body []byte
	seen := make(map[ident.ID]struct{}, len(f.Params))
	for _, p := range f.Params {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParam, p.ID)
		}
		seen[p.ID] = struct{}{}
		enc, err := value.Encode(p.Value)
		if err != nil {
			return nil, err
		}
		body = append(body, p.ID.Bytes()...)
		body = append(body, enc...)
	}

	totalLen := HeaderLen + len(body) + FooterLen
	if totalLen%4 != 0 {
		return nil, fmt.Errorf("%w: unaligned field length %d", ErrMalformedField, totalLen)
	}
	sizeWords := uint32(totalLen / 4)

	header := make([]byte, HeaderLen)
	copy(header[0:4], f.Name.Bytes())
	binary.LittleEndian.PutUint32(header[4:8], sizeWords)
	copy(header[8:12], f.TypeID.Bytes())
	binary.LittleEndian.PutUint32(header[12:16], f.FieldID)
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(f.Params)))

	dst = append(dst, header...)
	dst = append(dst, body...)
	dst = append(dst, 0, 0, 0, 0) // footer checksum, always 0 on encode
	return dst, nil
}

// Decode parses one field starting at b[0] and returns it along with the
// exact number of bytes consumed.
func Decode(b []byte) (Field, int, error) {
	if len(b) < HeaderLen {
		return Field{}, 0, fmt.Errorf("%w: short header", ErrMalformedField)
	}
	name, err := ident.FromBytes(b[0:4])
	if err != nil {
		return Field{}, 0, fmt.Errorf("%w: name: %v", ErrMalformedField, err)
	}
	sizeWords := binary.LittleEndian.Uint32(b[4:8])
	totalLen := int(sizeWords) * 4
	if totalLen < HeaderLen+FooterLen || totalLen > len(b) {
		return Field{}, 0, fmt.Errorf("%w: size out of range", ErrMalformedField)
	}
	typeID, err := ident.FromBytes(b[8:12])
	if err != nil {
		return Field{}, 0, fmt.Errorf("%w: type_id: %v", ErrMalformedField, err)
	}
	fieldID := binary.LittleEndian.Uint32(b[12:16])
	paramCount := binary.LittleEndian.Uint32(b[16:20])

	body := b[HeaderLen : totalLen-FooterLen]
	f := Field{Name: name, TypeID: typeID, FieldID: fieldID}
	seen := make(map[ident.ID]struct{}, paramCount)

	offset := 0
	for i := uint32(0); i < paramCount; i++ {
		if len(body)-offset < 4 {
			return Field{}, 0, fmt.Errorf("%w: truncated parameter header", ErrMalformedField)
		}
		paramID, err := ident.FromBytes(body[offset : offset+4])
		if err != nil {
			return Field{}, 0, fmt.Errorf("%w: param id: %v", ErrMalformedField, err)
		}
		v, consumed, err := value.Decode(body[offset+4:])
		if err != nil {
			return Field{}, 0, fmt.Errorf("%w: %v", ErrMalformedField, err)
		}
		if _, dup := seen[paramID]; dup {
			return Field{}, 0, fmt.Errorf("%w: %s", ErrDuplicateParam, paramID)
		}
		seen[paramID] = struct{}{}
		f.Params = append(f.Params, Param{ID: paramID, Value: v})
		offset += 4 + consumed
	}
	if offset != len(body) {
		return Field{}, 0, fmt.Errorf("%w: parameter_count/size mismatch", ErrMalformedField)
	}
	return f, totalLen, nil
}
