package store

import (
	"encoding/binary"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Input is a cursor over immutable bytes. Clones share the bytes but not the
// cursor, so each goroutine should hold its own clone.
type Input struct {
	name string
	data []byte
	pos  int64
}

func NewInput(name string, data []byte) *Input {
	return &Input{name: name, data: data}
}

func (in *Input) Name() string { return in.name }

func (in *Input) Len() int64 { return int64(len(in.data)) }

func (in *Input) FilePointer() int64 { return in.pos }

func (in *Input) Clone() *Input {
	return &Input{name: in.name, data: in.data}
}

func (in *Input) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(in.data)) {
		return apperrors.Corruptf("%s: seek to %d outside [0,%d]", in.name, pos, len(in.data))
	}
	in.pos = pos
	return nil
}

func (in *Input) eof(what string) error {
	return apperrors.Corruptf("%s: reading %s at %d: %v", in.name, what, in.pos, io.ErrUnexpectedEOF)
}

func (in *Input) ReadByte() (byte, error) {
	if in.pos >= int64(len(in.data)) {
		return 0, in.eof("byte")
	}
	b := in.data[in.pos]
	in.pos++
	return b, nil
}

func (in *Input) ReadBytes(n int) ([]byte, error) {
	if n < 0 || in.pos+int64(n) > int64(len(in.data)) {
		return nil, in.eof(fmt.Sprintf("%d bytes", n))
	}
	out := make([]byte, n)
	copy(out, in.data[in.pos:])
	in.pos += int64(n)
	return out, nil
}

func (in *Input) uvarint(what string) (uint64, error) {
	if in.pos >= int64(len(in.data)) {
		return 0, in.eof(what)
	}
	v, n := binary.Uvarint(in.data[in.pos:])
	if n <= 0 {
		return 0, apperrors.Corruptf("%s: malformed %s at %d", in.name, what, in.pos)
	}
	in.pos += int64(n)
	return v, nil
}

func (in *Input) ReadVInt() (int, error) {
	v, err := in.uvarint("vint")
	if err != nil {
		return 0, err
	}
	if v > uint64(^uint32(0)>>1) {
		return 0, apperrors.Corruptf("%s: vint %d out of range", in.name, v)
	}
	return int(v), nil
}

func (in *Input) ReadVLong() (int64, error) {
	v, err := in.uvarint("vlong")
	if err != nil {
		return 0, err
	}
	if v > uint64(^uint64(0)>>1) {
		return 0, apperrors.Corruptf("%s: vlong %d out of range", in.name, v)
	}
	return int64(v), nil
}

func (in *Input) ReadZLong() (int64, error) {
	if in.pos >= int64(len(in.data)) {
		return 0, in.eof("zlong")
	}
	v, n := binary.Varint(in.data[in.pos:])
	if n <= 0 {
		return 0, apperrors.Corruptf("%s: malformed zlong at %d", in.name, in.pos)
	}
	in.pos += int64(n)
	return v, nil
}

func (in *Input) ReadString() (string, error) {
	n, err := in.ReadVInt()
	if err != nil {
		return "", err
	}
	if in.pos+int64(n) > int64(len(in.data)) {
		return "", in.eof("string")
	}
	s := string(in.data[in.pos : in.pos+int64(n)])
	in.pos += int64(n)
	return s, nil
}

// ReadFixed reads a signed little-endian value of width 1, 2, 4 or 8 bytes.
func (in *Input) ReadFixed(width int) (int64, error) {
	if in.pos+int64(width) > int64(len(in.data)) {
		return 0, in.eof("fixed")
	}
	b := in.data[in.pos:]
	var v int64
	switch width {
	case 1:
		v = int64(int8(b[0]))
	case 2:
		v = int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		v = int64(int32(binary.LittleEndian.Uint32(b)))
	case 8:
		v = int64(binary.LittleEndian.Uint64(b))
	default:
		return 0, apperrors.Corruptf("%s: unsupported fixed width %d", in.name, width)
	}
	in.pos += int64(width)
	return v, nil
}
