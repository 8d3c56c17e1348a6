package payload

import (
	"errors"
	"fmt"
)

var errNoMoreBits = errors.New("no more bits")

// bitWriter packs bits least-significant first into bytes.
type bitWriter struct {
	buf   []byte
	cur   byte
	count uint
}

func (w *bitWriter) writeBit(bit int) {
	w.cur |= byte(bit&1) << w.count
	w.count++
	if w.count == 8 {
		w.flush()
	}
}

// flush pads the current byte with zero bits.
func (w *bitWriter) flush() {
	if w.count > 0 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.count = 0, 0
	}
}

// writePositive writes v >= 1 in Elias-gamma code.
func (w *bitWriter) writePositive(v int) error {
	if v < 1 {
		return fmt.Errorf("elias-gamma value must be positive, got %d", v)
	}
	if v == 1 {
		w.writeBit(1)
		return nil
	}
	w.writeBit(0)
	if err := w.writePositive(v / 2); err != nil {
		return err
	}
	w.writeBit(v % 2)
	return nil
}

func (w *bitWriter) writeNonNegative(v int) error {
	if v < 0 {
		return fmt.Errorf("elias-gamma value must be non-negative, got %d", v)
	}
	return w.writePositive(v + 1)
}

func (w *bitWriter) writeSigned(v int) error {
	if v >= 0 {
		return w.writePositive(2*v + 1)
	}
	return w.writePositive(-2 * v)
}

type bitReader struct {
	data  []byte
	pos   int
	count uint
}

func (r *bitReader) readBit() (int, error) {
	if r.pos >= len(r.data) {
		return 0, errNoMoreBits
	}
	bit := int(r.data[r.pos]>>r.count) & 1
	r.count++
	if r.count == 8 {
		r.pos++
		r.count = 0
	}
	return bit, nil
}

func (r *bitReader) readPositive() (int, error) {
	zeros := 0
	for {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			break
		}
		zeros++
		if zeros > 62 {
			return 0, fmt.Errorf("elias-gamma prefix too long")
		}
	}
	v := 1
	for i := 0; i < zeros; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v = 2*v + bit
	}
	return v, nil
}

func (r *bitReader) readNonNegative() (int, error) {
	v, err := r.readPositive()
	return v - 1, err
}

func (r *bitReader) readSigned() (int, error) {
	v, err := r.readPositive()
	if err != nil {
		return 0, err
	}
	if v%2 == 0 {
		return -v / 2, nil
	}
	return (v - 1) / 2, nil
}

// remaining returns the bytes after the current (partially read) byte.
func (r *bitReader) remaining() []byte {
	pos := r.pos
	if r.count > 0 {
		pos++
	}
	if pos >= len(r.data) {
		return []byte{}
	}
	out := make([]byte, len(r.data)-pos)
	copy(out, r.data[pos:])
	return out
}
