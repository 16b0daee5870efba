// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// Key addresses one asset of one session.
type Key struct {
	SessionID string
	Name      string
}

// Sink receives a fetched asset body. Write may be called again for the same
// key after a failed attempt and must replace any earlier content.
type Sink interface {
	Write(ctx context.Context, key Key, r io.Reader) (location string, err error)
}

// ErrInvalidKey is returned for keys that cannot be mapped to a safe location.
var ErrInvalidKey = errors.New("invalid asset key")

// FileSink stores assets under Root/<session>/<name>.
type FileSink struct {
	Root string
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Root: dir}
}

// Path returns the file location for key without touching the filesystem.
func (s *FileSink) Path(key Key) (string, error) {
	session, err := safeSegment(key.SessionID)
	if err != nil {
		return "", fmt.Errorf("%w: session %q", ErrInvalidKey, key.SessionID)
	}
	name, err := safeSegment(key.Name)
	if err != nil {
		return "", fmt.Errorf("%w: name %q", ErrInvalidKey, key.Name)
	}
	return filepath.Join(s.Root, session, name), nil
}

// Write streams r into place atomically. A partially written body never
// becomes visible.
func (s *FileSink) Write(ctx context.Context, key Key, r io.Reader) (string, error) {
	path, err := s.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return "", fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pendingFile.Cleanup()
	}()

	if _, err := io.Copy(pendingFile, readerWithContext(ctx, r)); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("commit asset: %w", err)
	}
	return path, nil
}

func safeSegment(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return "", ErrInvalidKey
	}
	return s, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return ctxReader{ctx: ctx, r: r}
}

// MemorySink keeps assets in memory. It backs the memory record store and tests.
type MemorySink struct {
	mu    sync.RWMutex
	items map[Key][]byte
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{items: make(map[Key][]byte)}
}

// Write buffers r fully and then stores it under key.
func (s *MemorySink) Write(ctx context.Context, key Key, r io.Reader) (string, error) {
	if _, err := safeSegment(key.Name); err != nil {
		return "", fmt.Errorf("%w: name %q", ErrInvalidKey, key.Name)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, readerWithContext(ctx, r)); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	s.mu.Lock()
	s.items[key] = buf.Bytes()
	s.mu.Unlock()
	return "mem://" + key.SessionID + "/" + key.Name, nil
}

// Get returns the stored bytes for key.
func (s *MemorySink) Get(key Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[key]
	return b, ok
}

// Len returns the number of stored assets.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
