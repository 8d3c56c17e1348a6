package store

import (
	"encoding/binary"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Magic opens every forward index file ("FWDX").
const Magic uint32 = 0x58445746

// Header identifies a file's role, format version and the term-index format
// the forward index extends.
type Header struct {
	Codec    string
	Version  int
	Delegate string
}

func WriteHeader(out *Output, h Header) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], Magic)
	out.WriteBytes(b[:])
	out.WriteString(h.Codec)
	out.WriteVInt(h.Version)
	out.WriteString(h.Delegate)
}

// ReadHeader validates the header at the start of in and leaves the cursor
// after it. A wrong magic or codec name is corruption; a version outside
// [minVersion,maxVersion] is reported as too old or too new.
func ReadHeader(in *Input, codec string, minVersion, maxVersion int) (Header, error) {
	if err := in.Seek(0); err != nil {
		return Header{}, err
	}
	magic, err := in.ReadBytes(4)
	if err != nil {
		return Header{}, err
	}
	if got := binary.LittleEndian.Uint32(magic); got != Magic {
		return Header{}, apperrors.Corruptf("%s: bad magic %#x", in.Name(), got)
	}
	var h Header
	if h.Codec, err = in.ReadString(); err != nil {
		return Header{}, err
	}
	if h.Codec != codec {
		return Header{}, apperrors.Corruptf("%s: codec %q, expected %q", in.Name(), h.Codec, codec)
	}
	if h.Version, err = in.ReadVInt(); err != nil {
		return Header{}, err
	}
	if h.Version < minVersion {
		return Header{}, fmt.Errorf("%w: %s has version %d, minimum supported %d",
			apperrors.ErrVersionTooOld, in.Name(), h.Version, minVersion)
	}
	if h.Version > maxVersion {
		return Header{}, fmt.Errorf("%w: %s has version %d, maximum supported %d",
			apperrors.ErrVersionTooNew, in.Name(), h.Version, maxVersion)
	}
	if h.Delegate, err = in.ReadString(); err != nil {
		return Header{}, err
	}
	return h, nil
}
