// Package tlv encodes the typed fields carried in a frame payload.
//
// Each field is id u16 | type u8 | len u32 | value, big-endian. Unknown ids
// survive a decode so newer peers can add fields.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
)

const (
	TypeU32    uint8 = 3
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

const fieldHeaderLen = 7

type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func U32(id uint16, v uint32) Field {
	return Field{ID: id, Type: TypeU32, Value: binary.BigEndian.AppendUint32(nil, v)}
}

// Fields is one payload in wire order.
type Fields []Field

// Size is the encoded length of fs.
func (fs Fields) Size() int {
	n := 0
	for _, f := range fs {
		n += fieldHeaderLen + len(f.Value)
	}
	return n
}

func (fs Fields) Encode() []byte {
	buf := make([]byte, 0, fs.Size())
	for _, f := range fs {
		buf = binary.BigEndian.AppendUint16(buf, f.ID)
		buf = append(buf, f.Type)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Value)))
		buf = append(buf, f.Value...)
	}
	return buf
}

// Lookup returns the first field with id.
func (fs Fields) Lookup(id uint16) (Field, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// Text returns the value of id when it is present and typed as a string.
func (fs Fields) Text(id uint16) (string, bool) {
	f, ok := fs.Lookup(id)
	if !ok || f.Type != TypeString {
		return "", false
	}
	return string(f.Value), true
}

// Decode splits payload into fields. Values share payload's backing array.
func Decode(payload []byte) (Fields, error) {
	var fs Fields
	for off := 0; off < len(payload); {
		rest := payload[off:]
		if len(rest) < fieldHeaderLen {
			return nil, fmt.Errorf("%w at offset %d", ErrShortFieldHeader, off)
		}
		n := binary.BigEndian.Uint32(rest[3:7])
		if uint64(len(rest)-fieldHeaderLen) < uint64(n) {
			return nil, fmt.Errorf("%w at offset %d: want %d bytes", ErrShortFieldValue, off, n)
		}
		end := fieldHeaderLen + int(n)
		fs = append(fs, Field{
			ID:    binary.BigEndian.Uint16(rest[0:2]),
			Type:  rest[2],
			Value: rest[fieldHeaderLen:end:end],
		})
		off += end
	}
	return fs, nil
}
