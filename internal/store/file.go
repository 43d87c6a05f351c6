package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"dolphind/internal/dolphin"
)

// Saved record header values.
const (
	fileMagic   = 0xD0
	fileVersion = 0x01
)

var (
	// ErrBadMagic is returned when the file is not a dolphin record.
	ErrBadMagic = errors.New("store: bad magic")

	// ErrVersion is returned for records written by an unknown format version.
	ErrVersion = errors.New("store: unsupported version")

	// ErrSize is returned when the payload size does not match the record.
	ErrSize = errors.New("store: payload size mismatch")

	// ErrChecksum is returned when the payload does not match its checksum.
	ErrChecksum = errors.New("store: checksum mismatch")
)

// fileHeader precedes the payload. The checksum is BLAKE2b-256 of the payload.
type fileHeader struct {
	Magic    uint8
	Version  uint8
	Flags    uint16
	Size     uint32
	Checksum [blake2b.Size256]byte
}

// FileStore keeps the record in a single binary file. Writes go to a
// temporary file that is renamed over the old one while holding an
// exclusive lock on a sidecar lock file.
type FileStore struct {
	path string
}

// OpenFile returns a FileStore for path, creating its directory.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the record location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and verifies the record.
func (s *FileStore) Load(ctx context.Context) (data dolphin.StoreData, err error) {
	_, span := startSpan(ctx, "Load", BackendFile)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock()
	if err != nil {
		return data, err
	}
	defer unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return data, dolphin.ErrNoState
		}
		return data, fmt.Errorf("read state: %w", err)
	}
	return decodeRecord(raw)
}

// Save writes the record atomically.
func (s *FileStore) Save(ctx context.Context, data dolphin.StoreData) (err error) {
	_, span := startSpan(ctx, "Save", BackendFile)
	defer func() { endSpan(span, err) }()

	raw, err := encodeRecord(data)
	if err != nil {
		return err
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// Ping takes and releases the lock, which proves the directory is writable.
func (s *FileStore) Ping(ctx context.Context) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	unlock()
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) lock() (func(), error) {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock state: %w", err)
	}
	return func() {
		_ = unlockFile(f)
		f.Close()
	}, nil
}

func encodeRecord(data dolphin.StoreData) ([]byte, error) {
	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	hdr := fileHeader{
		Magic:    fileMagic,
		Version:  fileVersion,
		Size:     uint32(payload.Len()),
		Checksum: blake2b.Sum256(payload.Bytes()),
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	out.Write(payload.Bytes())
	return out.Bytes(), nil
}

func decodeRecord(raw []byte) (dolphin.StoreData, error) {
	var data dolphin.StoreData
	var hdr fileHeader

	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return data, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Magic != fileMagic {
		return data, ErrBadMagic
	}
	if hdr.Version != fileVersion {
		return data, fmt.Errorf("%w: %d", ErrVersion, hdr.Version)
	}

	payload := raw[len(raw)-r.Len():]
	if int(hdr.Size) != len(payload) || len(payload) != binary.Size(data) {
		return data, ErrSize
	}
	if blake2b.Sum256(payload) != hdr.Checksum {
		return data, ErrChecksum
	}
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &data); err != nil {
		return data, fmt.Errorf("decode state: %w", err)
	}
	return data, nil
}
