// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_WriteAndReplace(t *testing.T) {
	root := t.TempDir()
	sink := NewFileSink(root)
	key := Key{SessionID: "sess-1", Name: "step-1.png"}

	loc, err := sink.Write(context.Background(), key, strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sess-1", "step-1.png"), loc)

	_, err = sink.Write(context.Background(), key, strings.NewReader("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "sess-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileSink_RejectsUnsafeKeys(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	for _, key := range []Key{
		{SessionID: "s", Name: ""},
		{SessionID: "s", Name: "../escape"},
		{SessionID: "..", Name: "a.png"},
		{SessionID: "s", Name: "nested/a.png"},
	} {
		_, err := sink.Write(context.Background(), key, strings.NewReader("x"))
		assert.True(t, errors.Is(err, ErrInvalidKey), "key=%+v err=%v", key, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFileSink_FailedWriteLeavesNothing(t *testing.T) {
	root := t.TempDir()
	sink := NewFileSink(root)
	key := Key{SessionID: "s", Name: "a.png"}

	_, err := sink.Write(context.Background(), key, failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "s"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemorySink_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemorySink().Write(ctx, Key{SessionID: "s", Name: "a"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
