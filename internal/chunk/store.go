package chunk

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/NamanBalaji/mtdl/internal/filesystem"
)

// Backing tells where a chunk keeps its bytes.
type Backing int

const (
	File Backing = iota
	Memory
)

func (b Backing) String() string {
	switch b {
	case File:
		return "file"
	case Memory:
		return "memory"
	default:
		return "unknown"
	}
}

// Store owns the destination of one chunk's bytes: a temp file or an
// in-memory buffer. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	backing  Backing
	path     string
	file     *os.File
	buf      *bytes.Buffer
	sizeHint int64
	size     int64
	disposed bool
}

// NewFileStore creates (or truncates) path and keeps the handle open for writing.
func NewFileStore(path string) (*Store, error) {
	f, err := filesystem.CreateFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChunkFileOpen, path, err)
	}

	return &Store{backing: File, path: path, file: f}, nil
}

// NewMemoryStore allocates a buffer able to hold sizeHint bytes without growing.
func NewMemoryStore(sizeHint int64) *Store {
	s := &Store{backing: Memory, sizeHint: sizeHint}
	s.buf = newBuffer(sizeHint)

	return s
}

func newBuffer(sizeHint int64) *bytes.Buffer {
	buf := &bytes.Buffer{}
	if sizeHint > 0 {
		buf.Grow(int(sizeHint))
	}

	return buf
}

func (s *Store) Kind() Backing {
	return s.backing
}

// Path is the chunk file path, or "" for memory stores.
func (s *Store) Path() string {
	return s.path
}

// Size returns the number of bytes written since the last Reset.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

func (s *Store) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return 0, ErrStoreClosed
	}

	var (
		n   int
		err error
	)

	switch s.backing {
	case File:
		if s.file == nil {
			return 0, ErrStoreClosed
		}
		n, err = s.file.Write(p)
	case Memory:
		n, err = s.buf.Write(p)
	}

	s.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrChunkFileWrite, err)
	}

	return n, nil
}

// Reset discards everything written so far so the chunk can be fetched again
// from its first byte. A closed file store is recreated.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreClosed
	}

	s.size = 0

	if s.backing == Memory {
		s.buf = newBuffer(s.sizeHint)
		return nil
	}

	if s.file == nil {
		f, err := filesystem.CreateFile(s.path)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrChunkFileOpen, s.path, err)
		}
		s.file = f

		return nil
	}

	if err := s.file.Truncate(0); err != nil {
		return err
	}

	_, err := s.file.Seek(0, io.SeekStart)

	return err
}

// Open returns a reader positioned at the first byte of the chunk. For file
// stores the write handle is flushed and closed first.
func (s *Store) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrSourceMissing
	}

	if s.backing == Memory {
		return io.NopCloser(bytes.NewReader(s.buf.Bytes())), nil
	}

	if err := s.closeFile(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, s.path)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrChunkFileOpen, s.path, err)
	}

	return f, nil
}

// Close releases the file handle and keeps the data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeFile()
}

func (s *Store) closeFile() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Sync()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil

	return err
}

// Dispose closes the store and deletes its data. Calling it again is a no-op.
func (s *Store) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}
	s.disposed = true
	s.size = 0

	if s.backing == Memory {
		s.buf = nil
		return nil
	}

	_ = s.closeFile()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.disposed
}
