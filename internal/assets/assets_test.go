package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/internal/errors"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsert_DefaultsAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Insert(ctx, Descriptor{Filename: "hero-banner.png", Tags: []string{"hero"}},
		strings.NewReader("pngbytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "hero-banner", d.Title)
	assert.Equal(t, "image/png", d.MimeType)

	got, err := s.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Filename, got.Filename)
	assert.Equal(t, []string{"hero"}, got.Tags)

	path, err := s.PathFor(ctx, d.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
}

func TestInsert_SameFilenameDistinctFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, Descriptor{Filename: "pic.png"}, strings.NewReader("one"))
	require.NoError(t, err)
	b, err := s.Insert(ctx, Descriptor{Filename: "pic.png"}, strings.NewReader("two"))
	require.NoError(t, err)

	pa, err := s.PathFor(ctx, a.ID)
	require.NoError(t, err)
	pb, err := s.PathFor(ctx, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, pa, pb)
}

func TestInsert_EmptyFilenameRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), Descriptor{}, strings.NewReader("x"))
	assert.True(t, errors.IsKind(err, errors.KindValidation), "got %v", err)
}

func TestDelete_RemovesRowAndFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Insert(ctx, Descriptor{Filename: "clip.mp4"}, strings.NewReader("vid"))
	require.NoError(t, err)
	path, err := s.PathFor(ctx, d.ID)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, d.ID))
	_, err = s.Get(ctx, d.ID)
	assert.True(t, errors.IsKind(err, errors.KindNotFound), "got %v", err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, errors.IsKind(s.Delete(ctx, d.ID), errors.KindNotFound))
}

func TestPath_StripsDirectoryComponents(t *testing.T) {
	s := newTestStore(t)
	d, err := s.Insert(context.Background(), Descriptor{Filename: "nested/dir/pic.png"}, strings.NewReader("x"))
	require.NoError(t, err)
	path, err := s.PathFor(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID+"_pic.png", filepath.Base(path))
}
