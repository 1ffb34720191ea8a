package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Reader decodes primitive and composite values from the snapshot's
// typed-value wire format: a single buffered reader, no intermediate
// whole-section byte copies.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewReader wraps r in a buffered Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *Reader) readTag() (Tag, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	return Tag(b), nil
}

// expectTag reads a tag and fails with ErrMalformed unless it matches want.
func (d *Reader) expectTag(want Tag) error {
	t, err := d.readTag()
	if err != nil {
		return err
	}
	if t != want {
		return fmt.Errorf("%w: expected tag %d, got %d", ErrMalformed, want, t)
	}
	return nil
}

// ReadBool reads a tagged boolean.
func (d *Reader) ReadBool() (bool, error) {
	if err := d.expectTag(TagBool); err != nil {
		return false, err
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadUint reads a tagged unsigned integer.
func (d *Reader) ReadUint() (uint64, error) {
	if err := d.expectTag(TagUint); err != nil {
		return 0, err
	}
	return d.readMagnitude()
}

func (d *Reader) readMagnitude() (uint64, error) {
	n, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if int(n) > MaxIntBytes {
		return 0, fmt.Errorf("%w: magnitude length %d exceeds %d bytes", ErrMalformed, n, MaxIntBytes)
	}
	if n == 0 {
		return 0, nil
	}
	var tmp [MaxIntBytes]byte
	if _, err := io.ReadFull(d.r, tmp[:n]); err != nil {
		return 0, wrapTruncated(err)
	}
	var v uint64
	for i := 0; i < int(n); i++ {
		v = v<<8 | uint64(tmp[i])
	}
	return v, nil
}

// ReadInt reads a tagged signed integer (minimal two's-complement form).
func (d *Reader) ReadInt() (int64, error) {
	if err := d.expectTag(TagInt); err != nil {
		return 0, err
	}
	n, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if int(n) > MaxIntBytes {
		return 0, fmt.Errorf("%w: magnitude length %d exceeds %d bytes", ErrMalformed, n, MaxIntBytes)
	}
	if n == 0 {
		return 0, nil
	}
	var tmp [MaxIntBytes]byte
	if _, err := io.ReadFull(d.r, tmp[:n]); err != nil {
		return 0, wrapTruncated(err)
	}
	var v uint64
	for i := 0; i < int(n); i++ {
		v = v<<8 | uint64(tmp[i])
	}
	if n >= 8 {
		// n bytes already fill (and for n > 8, overflow past) a uint64;
		// there are no remaining high bits to sign-extend.
		return int64(v), nil
	}
	// Sign-extend from n bytes to 64 bits.
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift, nil
}

// ReadShortString reads a string with a 2-byte length prefix.
func (d *Reader) ReadShortString() (string, error) {
	if err := d.expectTag(TagShortString); err != nil {
		return "", err
	}
	if _, err := io.ReadFull(d.r, d.buf[:2]); err != nil {
		return "", wrapTruncated(err)
	}
	n := binary.BigEndian.Uint16(d.buf[:2])
	return d.readStringBytes(int(n))
}

// ReadLongString reads a string with a 4-byte length prefix.
func (d *Reader) ReadLongString() (string, error) {
	if err := d.expectTag(TagLongString); err != nil {
		return "", err
	}
	if _, err := io.ReadFull(d.r, d.buf[:4]); err != nil {
		return "", wrapTruncated(err)
	}
	n := binary.BigEndian.Uint32(d.buf[:4])
	return d.readStringBytes(int(n))
}

func (d *Reader) readStringBytes(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length", ErrMalformed)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return "", wrapTruncated(err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	return string(data), nil
}

// ReadString reads either string encoding, dispatching on the tag byte
// without consuming it first.
func (d *Reader) ReadString() (string, error) {
	t, err := d.peekTag()
	if err != nil {
		return "", err
	}
	switch t {
	case TagShortString:
		return d.ReadShortString()
	case TagLongString:
		return d.ReadLongString()
	default:
		return "", fmt.Errorf("%w: expected string tag, got %d", ErrMalformed, t)
	}
}

// ReadAddress reads a fixed 8-byte big-endian address.
func (d *Reader) ReadAddress() (Addr, error) {
	if err := d.expectTag(TagAddress); err != nil {
		return 0, err
	}
	if _, err := io.ReadFull(d.r, d.buf[:8]); err != nil {
		return 0, wrapTruncated(err)
	}
	return Addr(binary.BigEndian.Uint64(d.buf[:8])), nil
}

// ReadListHeader reads the List tag and returns its element count.
func (d *Reader) ReadListHeader() (int, error) {
	if err := d.expectTag(TagList); err != nil {
		return 0, err
	}
	return d.readCount()
}

// ReadStringMapHeader reads the StringMap tag and returns its pair count.
func (d *Reader) ReadStringMapHeader() (int, error) {
	if err := d.expectTag(TagStringMap); err != nil {
		return 0, err
	}
	return d.readCount()
}

// ReadAddressMapHeader reads the AddressMap tag and returns its pair count.
func (d *Reader) ReadAddressMapHeader() (int, error) {
	if err := d.expectTag(TagAddressMap); err != nil {
		return 0, err
	}
	return d.readCount()
}

func (d *Reader) readCount() (int, error) {
	if _, err := io.ReadFull(d.r, d.buf[:4]); err != nil {
		return 0, wrapTruncated(err)
	}
	n := binary.BigEndian.Uint32(d.buf[:4])
	if n > 1<<28 {
		return 0, fmt.Errorf("%w: implausible count %d", ErrMalformed, n)
	}
	return int(n), nil
}

// ReadMapKeyString reads a string map key (untagged, 2-byte length prefix).
func (d *Reader) ReadMapKeyString() (string, error) {
	if _, err := io.ReadFull(d.r, d.buf[:2]); err != nil {
		return "", wrapTruncated(err)
	}
	n := binary.BigEndian.Uint16(d.buf[:2])
	return d.readStringBytes(int(n))
}

// ReadMapKeyAddress reads an address map key (untagged, 8 raw bytes).
func (d *Reader) ReadMapKeyAddress() (Addr, error) {
	if _, err := io.ReadFull(d.r, d.buf[:8]); err != nil {
		return 0, wrapTruncated(err)
	}
	return Addr(binary.BigEndian.Uint64(d.buf[:8])), nil
}

// ReadNull reads a tagged null value.
func (d *Reader) ReadNull() error {
	return d.expectTag(TagNull)
}

// PeekIsNull reports whether the next tag is Null without consuming it.
// Used by the codec for "or null" optional fields.
func (d *Reader) PeekIsNull() (bool, error) {
	t, err := d.peekTag()
	if err != nil {
		return false, err
	}
	return t == TagNull, nil
}

func (d *Reader) peekTag() (Tag, error) {
	b, err := d.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return Tag(b[0]), nil
}

// ReadValue reads a value of any wire type, recursing into List/StringMap/
// AddressMap. The concrete Go type returned matches what Writer.WriteValue
// accepts, so decode(encode(v)) reproduces v.
func (d *Reader) ReadValue() (Value, error) {
	t, err := d.peekTag()
	if err != nil {
		return nil, err
	}
	switch t {
	case TagNull:
		return nil, d.ReadNull()
	case TagBool:
		return d.ReadBool()
	case TagUint:
		return d.ReadUint()
	case TagInt:
		return d.ReadInt()
	case TagShortString:
		return d.ReadShortString()
	case TagLongString:
		return d.ReadLongString()
	case TagAddress:
		return d.ReadAddress()
	case TagList:
		n, err := d.ReadListHeader()
		if err != nil {
			return nil, err
		}
		out := make([]Value, n)
		for i := 0; i < n; i++ {
			v, err := d.ReadValue()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case TagStringMap:
		n, err := d.ReadStringMapHeader()
		if err != nil {
			return nil, err
		}
		out := make(map[string]Value, n)
		for i := 0; i < n; i++ {
			k, err := d.ReadMapKeyString()
			if err != nil {
				return nil, err
			}
			v, err := d.ReadValue()
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case TagAddressMap:
		n, err := d.ReadAddressMapHeader()
		if err != nil {
			return nil, err
		}
		out := make(map[Addr]Value, n)
		for i := 0; i < n; i++ {
			k, err := d.ReadMapKeyAddress()
			if err != nil {
				return nil, err
			}
			v, err := d.ReadValue()
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownTag, t)
	}
}

func wrapTruncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated input: %v", ErrMalformed, err)
	}
	return err
}
