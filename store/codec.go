package store

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidSize is returned when a key or value's length mismatches a
// fixed size configured for the table, or a meta-prefix's length
// mismatches the codec's configured prefix size.
var ErrInvalidSize = errors.New("store: invalid key or value size")

// recordCodec serializes a (key, value[, meta]) triple into one
// contiguous buffer: an optional 16-bit key length, an optional 32-bit
// value length (meta-inclusive when a meta prefix is configured), key
// bytes, meta bytes, then value bytes. All length fields are
// little-endian; there is no internal padding.
type recordCodec struct {
	fixedKeySize   uint16
	fixedValueSize uint32
	metaPrefixSize uint32
}

func newRecordCodec(fixedKeySize uint16, fixedValueSize, metaPrefixSize uint32) recordCodec {
	return recordCodec{fixedKeySize, fixedValueSize, metaPrefixSize}
}

// bufferSize returns the number of bytes encode needs for key and value.
func (c recordCodec) bufferSize(key, value []byte) int {
	keyPart := int(c.fixedKeySize)
	if c.fixedKeySize == 0 {
		keyPart = len(key) + 2
	}
	valuePart := len(value) + 4 + int(c.metaPrefixSize)
	if c.fixedValueSize != 0 {
		valuePart = int(c.fixedValueSize) + int(c.metaPrefixSize)
	}
	return keyPart + valuePart
}

// recordOverhead is the number of bytes used purely by length prefixes,
// for index-size accounting.
func (c recordCodec) recordOverhead() int {
	overhead := 0
	if c.fixedKeySize == 0 {
		overhead += 2
	}
	if c.fixedValueSize == 0 {
		overhead += 4
	}
	return overhead
}

func (c recordCodec) validate(key, value []byte) error {
	if c.fixedKeySize != 0 && len(key) != int(c.fixedKeySize) {
		return ErrInvalidSize
	}
	if c.fixedValueSize != 0 && len(value) != int(c.fixedValueSize) {
		return ErrInvalidSize
	}
	return nil
}

// encode lays out key, optional meta, and value into a freshly allocated
// buffer. meta, when non-nil, is written between the key and value bytes
// and counted into the encoded value-length field.
func (c recordCodec) encode(key, value, meta []byte) (recordBuffer, error) {
	if err := c.validate(key, value); err != nil {
		return nil, err
	}
	if meta != nil && len(meta) != int(c.metaPrefixSize) {
		return nil, ErrInvalidSize
	}

	buf := make([]byte, c.bufferSize(key, value))
	off := 0
	if c.fixedKeySize == 0 {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(key)))
		off += 2
	}
	if c.fixedValueSize == 0 {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(value)+len(meta)))
		off += 4
	}
	off += copy(buf[off:], key)
	off += copy(buf[off:], meta)
	copy(buf[off:], value)
	return buf, nil
}

// decodedRecord is the (key, value) pair recovered from a buffer. value
// includes the meta prefix whenever the codec carries one; callers that
// layer caching metadata on top strip it themselves.
type decodedRecord struct {
	key   []byte
	value []byte
}

func (c recordCodec) decode(buf recordBuffer) decodedRecord {
	off := 0
	keySize := int(c.fixedKeySize)
	if c.fixedKeySize == 0 {
		keySize = int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
	}

	valueSize := int(c.fixedValueSize) + int(c.metaPrefixSize)
	if c.fixedValueSize == 0 {
		valueSize = int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	key := buf[off : off+keySize]
	value := buf[off+keySize : off+keySize+valueSize]
	return decodedRecord{key: key, value: value}
}
