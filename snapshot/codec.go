// ABOUTME: Container framing for snapshot files: gzip + magic/version + sections
// ABOUTME: Load streams each section straight into the builder, Save mirrors it back

package snapshot

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/prateek/heaplens/wire"
)

// Magic identifies a heaplens snapshot file, read immediately after gzip
// decompression.
var Magic = [4]byte{'P', 'Y', 'H', 'P'}

// CurrentVersion is written by Save and is the highest version Load accepts.
const CurrentVersion uint32 = 1

type sectionTag byte

const (
	sectionHeader  sectionTag = 1
	sectionTypes   sectionTag = 2
	sectionObjects sectionTag = 3
	sectionThreads sectionTag = 4
)

func (t sectionTag) String() string {
	switch t {
	case sectionHeader:
		return "header"
	case sectionTypes:
		return "types"
	case sectionObjects:
		return "objects"
	case sectionThreads:
		return "threads"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Load decodes a snapshot file from r. Each top-level section is decoded
// against an io.LimitReader bounded by its own length prefix and discarded
// once consumed; no intermediate copy of a section's raw bytes is kept, so
// peak memory tracks the resulting object/type/thread tables rather than
// the file size. Cancellation is polled once per section.
func Load(ctx context.Context, r io.Reader, opts ...LoadOption) (*Snapshot, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrMalformedSnapshot, err)
	}
	defer gz.Close()

	br := bufio.NewReaderSize(gz, 64*1024)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrMalformedSnapshot, err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %x", ErrMalformedSnapshot, magic)
	}

	var versionBuf [4]byte
	if _, err := io.ReadFull(br, versionBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrMalformedSnapshot, err)
	}
	version := binary.BigEndian.Uint32(versionBuf[:])
	if version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d (max understood %d)", ErrUnsupportedVersion, version, CurrentVersion)
	}

	b := newBuilder()
	b.snap.Version = version

	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}

		tagByte, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading section tag: %v", ErrMalformedSnapshot, err)
		}
		tag := sectionTag(tagByte)

		var lenBuf [8]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: reading section length: %v", ErrMalformedSnapshot, err)
		}
		length := int64(binary.BigEndian.Uint64(lenBuf[:]))
		if length < 0 {
			return nil, fmt.Errorf("%w: negative section length", ErrMalformedSnapshot)
		}

		limited := io.LimitReader(br, length)
		switch tag {
		case sectionHeader:
			err = decodeHeader(limited, b)
		case sectionTypes:
			err = decodeTypes(limited, b)
		case sectionObjects:
			err = decodeObjects(limited, b)
		case sectionThreads:
			err = decodeThreads(limited, b)
		default:
			b.snap.diagnostics.recordUnknownSection()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: section %s: %v", ErrMalformedSnapshot, tag, err)
		}

		// The length prefix is authoritative; drain whatever the section
		// decoder didn't consume so the next tag byte is aligned even if
		// a producer padded or a future minor-version field was added.
		if _, err := io.Copy(io.Discard, limited); err != nil {
			return nil, fmt.Errorf("%w: draining section %s: %v", ErrMalformedSnapshot, tag, err)
		}

		if cfg.progress != nil {
			cfg.progress(tag.String(), length)
		}
	}

	return b.finalize(), nil
}

func decodeHeader(r io.Reader, b *builder) error {
	wr := wire.NewReader(r)
	v, err := wr.ReadValue()
	if err != nil {
		return err
	}
	m, ok := v.(map[string]wire.Value)
	if !ok {
		return fmt.Errorf("%w: header is not a string map", ErrMalformedSnapshot)
	}
	b.snap.Header = m
	return nil
}

func decodeTypes(r io.Reader, b *builder) error {
	wr := wire.NewReader(r)
	n, err := wr.ReadAddressMapHeader()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		addr, err := wr.ReadMapKeyAddress()
		if err != nil {
			return err
		}
		name, err := wr.ReadString()
		if err != nil {
			return err
		}
		a := Address(addr)
		if _, dup := b.snap.types[a]; dup {
			b.snap.diagnostics.recordDupType()
		}
		b.snap.types[a] = &Type{Addr: a, Name: name}
	}
	return nil
}

func decodeObjects(r io.Reader, b *builder) error {
	wr := wire.NewReader(r)
	n, err := wr.ReadAddressMapHeader()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		addr, err := wr.ReadMapKeyAddress()
		if err != nil {
			return err
		}
		obj, err := decodeObjectRecord(wr, Address(addr))
		if err != nil {
			return err
		}
		if _, dup := b.snap.objects[obj.Addr]; dup {
			b.snap.diagnostics.recordDupObject()
		}
		b.snap.objects[obj.Addr] = obj
		b.addTarget(obj.TypeAddr)
		for _, ref := range obj.Referents {
			b.addTarget(ref)
		}
		for _, v := range obj.Attributes {
			b.addTarget(v)
		}
		for _, e := range obj.Elements {
			b.addTarget(e)
		}
	}
	return nil
}

// decodeObjectRecord reads one object's fixed field sequence directly into
// a *Object, skipping the generic Value tree entirely: the objects section
// dominates a snapshot's size, so this is the path that has to stay
// allocation-lean rather than building and discarding a map[string]Value
// per record.
func decodeObjectRecord(wr *wire.Reader, addr Address) (*Object, error) {
	obj := &Object{Addr: addr}

	typeAddr, err := wr.ReadAddress()
	if err != nil {
		return nil, err
	}
	obj.TypeAddr = Address(typeAddr)

	size, err := wr.ReadUint()
	if err != nil {
		return nil, err
	}
	obj.Size = size

	isNull, err := wr.PeekIsNull()
	if err != nil {
		return nil, err
	}
	if isNull {
		if err := wr.ReadNull(); err != nil {
			return nil, err
		}
	} else {
		s, err := wr.ReadString()
		if err != nil {
			return nil, err
		}
		obj.Str, obj.HasStr = s, true
	}

	nRef, err := wr.ReadListHeader()
	if err != nil {
		return nil, err
	}
	if nRef > 0 {
		obj.Referents = make([]Address, nRef)
		for i := 0; i < nRef; i++ {
			a, err := wr.ReadAddress()
			if err != nil {
				return nil, err
			}
			obj.Referents[i] = Address(a)
		}
	}

	isNull, err = wr.PeekIsNull()
	if err != nil {
		return nil, err
	}
	if isNull {
		if err := wr.ReadNull(); err != nil {
			return nil, err
		}
	} else {
		nAttr, err := wr.ReadStringMapHeader()
		if err != nil {
			return nil, err
		}
		obj.Attributes = make(map[string]Address, nAttr)
		for i := 0; i < nAttr; i++ {
			k, err := wr.ReadMapKeyString()
			if err != nil {
				return nil, err
			}
			v, err := wr.ReadAddress()
			if err != nil {
				return nil, err
			}
			obj.Attributes[k] = Address(v)
		}
	}

	isNull, err = wr.PeekIsNull()
	if err != nil {
		return nil, err
	}
	if isNull {
		if err := wr.ReadNull(); err != nil {
			return nil, err
		}
	} else {
		nElem, err := wr.ReadListHeader()
		if err != nil {
			return nil, err
		}
		obj.Elements = make([]Address, nElem)
		for i := 0; i < nElem; i++ {
			a, err := wr.ReadAddress()
			if err != nil {
				return nil, err
			}
			obj.Elements[i] = Address(a)
		}
	}

	return obj, nil
}

func decodeThreads(r io.Reader, b *builder) error {
	wr := wire.NewReader(r)
	n, err := wr.ReadListHeader()
	if err != nil {
		return err
	}
	threads := make([]*Thread, n)
	for i := 0; i < n; i++ {
		th, err := decodeThreadRecord(wr, b)
		if err != nil {
			return err
		}
		threads[i] = th
	}
	b.snap.threads = threads
	return nil
}

func decodeThreadRecord(wr *wire.Reader, b *builder) (*Thread, error) {
	name, err := wr.ReadString()
	if err != nil {
		return nil, err
	}
	alive, err := wr.ReadBool()
	if err != nil {
		return nil, err
	}
	daemon, err := wr.ReadBool()
	if err != nil {
		return nil, err
	}
	nFrames, err := wr.ReadListHeader()
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, nFrames)
	for i := 0; i < nFrames; i++ {
		f, err := decodeFrameRecord(wr, b)
		if err != nil {
			return nil, err
		}
		frames[i] = f
	}
	return &Thread{Name: name, Alive: alive, Daemon: daemon, Frames: frames}, nil
}

func decodeFrameRecord(wr *wire.Reader, b *builder) (Frame, error) {
	file, err := wr.ReadString()
	if err != nil {
		return Frame{}, err
	}
	line, err := wr.ReadUint()
	if err != nil {
		return Frame{}, err
	}
	fn, err := wr.ReadString()
	if err != nil {
		return Frame{}, err
	}
	nLocals, err := wr.ReadStringMapHeader()
	if err != nil {
		return Frame{}, err
	}
	locals := make(map[string]Address, nLocals)
	for i := 0; i < nLocals; i++ {
		k, err := wr.ReadMapKeyString()
		if err != nil {
			return Frame{}, err
		}
		v, err := wr.ReadAddress()
		if err != nil {
			return Frame{}, err
		}
		a := Address(v)
		locals[k] = a
		b.addTarget(a)
	}
	return Frame{File: file, Line: line, Function: fn, Locals: locals}, nil
}

// Save encodes snap as a snapshot file, gzip-compressed. It is the inverse
// of Load and exists primarily so producers (tests, the cache warm path,
// fixtures) can build a *Snapshot in memory and round-trip it through the
// same container format Load reads.
func Save(w io.Writer, snap *Snapshot) error {
	gz := gzip.NewWriter(w)

	if _, err := gz.Write(Magic[:]); err != nil {
		return err
	}
	var versionBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], CurrentVersion)
	if _, err := gz.Write(versionBuf[:]); err != nil {
		return err
	}

	if err := writeSection(gz, sectionHeader, func(wr *wire.Writer) error {
		return wr.WriteValue(snap.Header)
	}); err != nil {
		return err
	}
	if err := writeSection(gz, sectionTypes, func(wr *wire.Writer) error {
		return encodeTypes(wr, snap)
	}); err != nil {
		return err
	}
	if err := writeSection(gz, sectionObjects, func(wr *wire.Writer) error {
		return encodeObjects(wr, snap)
	}); err != nil {
		return err
	}
	if err := writeSection(gz, sectionThreads, func(wr *wire.Writer) error {
		return encodeThreads(wr, snap)
	}); err != nil {
		return err
	}

	return gz.Close()
}

// writeSection buffers one section's payload (needed to know its length
// before the length prefix can be written) then frames and emits it.
func writeSection(w io.Writer, tag sectionTag, encode func(*wire.Writer) error) error {
	var payload fixedBuffer
	wr := wire.NewWriter(&payload)
	if err := encode(wr); err != nil {
		return err
	}
	if err := wr.Flush(); err != nil {
		return err
	}

	if _, err := w.Write([]byte{byte(tag)}); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(payload.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

func encodeTypes(wr *wire.Writer, snap *Snapshot) error {
	if err := wr.WriteAddressMapHeader(len(snap.types)); err != nil {
		return err
	}
	for addr, t := range snap.types {
		if err := wr.WriteMapKeyAddress(wire.Addr(addr)); err != nil {
			return err
		}
		if err := wr.WriteString(t.Name); err != nil {
			return err
		}
	}
	return nil
}

func encodeObjects(wr *wire.Writer, snap *Snapshot) error {
	if err := wr.WriteAddressMapHeader(len(snap.objects)); err != nil {
		return err
	}
	for addr, obj := range snap.objects {
		if err := wr.WriteMapKeyAddress(wire.Addr(addr)); err != nil {
			return err
		}
		if err := encodeObjectRecord(wr, obj); err != nil {
			return err
		}
	}
	return nil
}

func encodeObjectRecord(wr *wire.Writer, obj *Object) error {
	if err := wr.WriteAddress(wire.Addr(obj.TypeAddr)); err != nil {
		return err
	}
	if err := wr.WriteUint(obj.Size); err != nil {
		return err
	}
	if obj.HasStr {
		if err := wr.WriteString(obj.Str); err != nil {
			return err
		}
	} else {
		if err := wr.WriteNull(); err != nil {
			return err
		}
	}
	if err := wr.WriteListHeader(len(obj.Referents)); err != nil {
		return err
	}
	for _, r := range obj.Referents {
		if err := wr.WriteAddress(wire.Addr(r)); err != nil {
			return err
		}
	}
	if obj.Attributes == nil {
		if err := wr.WriteNull(); err != nil {
			return err
		}
	} else {
		if err := wr.WriteStringMapHeader(len(obj.Attributes)); err != nil {
			return err
		}
		for k, v := range obj.Attributes {
			if err := wr.WriteMapKeyString(k); err != nil {
				return err
			}
			if err := wr.WriteAddress(wire.Addr(v)); err != nil {
				return err
			}
		}
	}
	if obj.Elements == nil {
		return wr.WriteNull()
	}
	if err := wr.WriteListHeader(len(obj.Elements)); err != nil {
		return err
	}
	for _, e := range obj.Elements {
		if err := wr.WriteAddress(wire.Addr(e)); err != nil {
			return err
		}
	}
	return nil
}

func encodeThreads(wr *wire.Writer, snap *Snapshot) error {
	if err := wr.WriteListHeader(len(snap.threads)); err != nil {
		return err
	}
	for _, th := range snap.threads {
		if err := wr.WriteString(th.Name); err != nil {
			return err
		}
		if err := wr.WriteBool(th.Alive); err != nil {
			return err
		}
		if err := wr.WriteBool(th.Daemon); err != nil {
			return err
		}
		if err := wr.WriteListHeader(len(th.Frames)); err != nil {
			return err
		}
		for _, f := range th.Frames {
			if err := encodeFrameRecord(wr, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeFrameRecord(wr *wire.Writer, f Frame) error {
	if err := wr.WriteString(f.File); err != nil {
		return err
	}
	if err := wr.WriteUint(f.Line); err != nil {
		return err
	}
	if err := wr.WriteString(f.Function); err != nil {
		return err
	}
	if err := wr.WriteStringMapHeader(len(f.Locals)); err != nil {
		return err
	}
	for k, v := range f.Locals {
		if err := wr.WriteMapKeyString(k); err != nil {
			return err
		}
		if err := wr.WriteAddress(wire.Addr(v)); err != nil {
			return err
		}
	}
	return nil
}

// fixedBuffer is a tiny io.Writer collecting a single section's bytes; a
// section has to be measured before its length prefix can be written, so
// this buffering is confined to the encode side (Save) and never appears
// on the streaming decode path (Load).
type fixedBuffer struct {
	b []byte
}

func (f *fixedBuffer) Write(p []byte) (int, error) {
	f.b = append(f.b, p...)
	return len(p), nil
}

func (f *fixedBuffer) Len() int      { return len(f.b) }
func (f *fixedBuffer) Bytes() []byte { return f.b }
