package store

import (
	"fmt"
	"os"
)

// File is a read-only memory mapping of a sealed index file.
type File struct {
	name string
	data []byte
	f    *os.File
}

// Open maps the file at path into memory.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()
	if size == 0 {
		return &File{name: path, f: f}, nil
	}
	if int64(int(size)) != size {
		f.Close()
		return nil, fmt.Errorf("mapping %s: size %d too large", path, size)
	}
	data, err := mmap(f, int(size))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &File{name: path, data: data, f: f}, nil
}

func (m *File) Name() string { return m.name }

func (m *File) Size() int64 { return int64(len(m.data)) }

// Input returns a fresh cursor over the mapped bytes.
func (m *File) Input() *Input {
	return NewInput(m.name, m.data)
}

// Close unmaps the memory and closes the underlying file. Inputs obtained
// from m must not be used afterwards.
func (m *File) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if m.f != nil {
		if closeErr := m.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.f = nil
	}
	return err
}
