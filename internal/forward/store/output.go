// Package store provides the append-only outputs and random-access inputs the
// forward index files are written with and read from: Lucene-style varints,
// zig-zag longs, length-prefixed strings and fixed-width little-endian values.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Output appends to a file and tracks the logical file pointer. Write errors
// are sticky: after the first failure every call is a no-op and Err (and
// Close) report it.
type Output struct {
	name string
	f    *os.File
	w    *bufio.Writer
	fp   int64
	err  error
	buf  [binary.MaxVarintLen64]byte
}

func Create(path string) (*Output, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &Output{name: path, f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (o *Output) Name() string { return o.name }

func (o *Output) FilePointer() int64 { return o.fp }

func (o *Output) Err() error { return o.err }

func (o *Output) fail(err error) {
	if o.err == nil {
		o.err = fmt.Errorf("writing %s: %w", o.name, err)
	}
}

func (o *Output) WriteBytes(p []byte) {
	if o.err != nil {
		return
	}
	n, err := o.w.Write(p)
	o.fp += int64(n)
	if err != nil {
		o.fail(err)
	}
}

func (o *Output) WriteByte(b byte) error {
	if o.err != nil {
		return o.err
	}
	if err := o.w.WriteByte(b); err != nil {
		o.fail(err)
		return o.err
	}
	o.fp++
	return nil
}

// WriteVInt writes a non-negative int as an unsigned varint.
func (o *Output) WriteVInt(v int) {
	if v < 0 || int64(v) > int64(^uint32(0)>>1) {
		o.fail(fmt.Errorf("vint out of range: %d", v))
		return
	}
	o.WriteBytes(o.buf[:binary.PutUvarint(o.buf[:], uint64(v))])
}

// WriteVLong writes a non-negative int64 as an unsigned varint.
func (o *Output) WriteVLong(v int64) {
	if v < 0 {
		o.fail(fmt.Errorf("negative vlong: %d", v))
		return
	}
	o.WriteBytes(o.buf[:binary.PutUvarint(o.buf[:], uint64(v))])
}

// WriteZLong writes a signed value with zig-zag encoding.
func (o *Output) WriteZLong(v int64) {
	o.WriteBytes(o.buf[:binary.PutVarint(o.buf[:], v)])
}

func (o *Output) WriteString(s string) {
	o.WriteVInt(len(s))
	if o.err == nil {
		n, err := o.w.WriteString(s)
		o.fp += int64(n)
		if err != nil {
			o.fail(err)
		}
	}
}

// WriteFixed writes v little-endian in width bytes (1, 2, 4 or 8).
func (o *Output) WriteFixed(v int64, width int) {
	switch width {
	case 1:
		o.WriteBytes([]byte{byte(int8(v))})
	case 2:
		binary.LittleEndian.PutUint16(o.buf[:2], uint16(int16(v)))
		o.WriteBytes(o.buf[:2])
	case 4:
		binary.LittleEndian.PutUint32(o.buf[:4], uint32(int32(v)))
		o.WriteBytes(o.buf[:4])
	case 8:
		binary.LittleEndian.PutUint64(o.buf[:8], uint64(v))
		o.WriteBytes(o.buf[:8])
	default:
		o.fail(fmt.Errorf("unsupported fixed width %d", width))
	}
}

// Close flushes, syncs and closes the file, returning the first error seen.
func (o *Output) Close() error {
	if o.f == nil {
		return o.err
	}
	if o.err == nil {
		if err := o.w.Flush(); err != nil {
			o.fail(err)
		}
	}
	if o.err == nil {
		if err := o.f.Sync(); err != nil {
			o.fail(err)
		}
	}
	if err := o.f.Close(); err != nil {
		o.fail(err)
	}
	o.f = nil
	return o.err
}
