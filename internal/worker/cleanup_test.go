package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRenderDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "final.mp4"), []byte("mp4"), 0o644))
	return dir
}

func TestSweepRemovesExpiredDirs(t *testing.T) {
	root := t.TempDir()
	expired := makeRenderDir(t, root, "spring-outreach-rnd-1")
	pending := makeRenderDir(t, root, "spring-outreach-rnd-2")
	unmarked := makeRenderDir(t, root, "spring-outreach-rnd-3")

	require.NoError(t, WriteReapMarker(expired, time.Now().Add(-time.Minute)))
	require.NoError(t, WriteReapMarker(pending, time.Now().Add(time.Hour)))

	j := NewJanitor(JanitorConfig{Root: root, Interval: time.Minute, MaxAge: 30 * 24 * time.Hour}, nil)
	j.sweep()

	assert.NoDirExists(t, expired)
	assert.DirExists(t, pending)
	// Directories without a marker are left for the age backstop.
	assert.DirExists(t, unmarked)
}

func TestSweepIgnoresFilesAndGarbageMarkers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.log"), []byte("x"), 0o644))

	garbage := makeRenderDir(t, root, "campaign-rnd-9")
	require.NoError(t, os.WriteFile(filepath.Join(garbage, reapMarkerName), []byte("not a timestamp"), 0o644))

	j := NewJanitor(JanitorConfig{Root: root, Interval: time.Minute, MaxAge: time.Hour}, nil)
	j.sweep()

	assert.FileExists(t, filepath.Join(root, "stray.log"))
	assert.DirExists(t, garbage)
}

func TestSweepMissingRootIsQuiet(t *testing.T) {
	j := NewJanitor(JanitorConfig{Root: filepath.Join(t.TempDir(), "nope"), Interval: time.Minute}, nil)
	j.sweep()
}

func TestMopUpRemovesAncientDirs(t *testing.T) {
	root := t.TempDir()
	ancient := makeRenderDir(t, root, "old-campaign-rnd-1")
	recent := makeRenderDir(t, root, "new-campaign-rnd-2")

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(ancient, old, old))

	j := NewJanitor(JanitorConfig{Root: root, Interval: time.Minute, MaxAge: 24 * time.Hour}, nil)
	j.mopUp()

	assert.NoDirExists(t, ancient)
	assert.DirExists(t, recent)
}

func TestReapMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, WriteReapMarker(dir, at))

	got, ok := readReapMarker(dir)
	require.True(t, ok)
	assert.True(t, got.Equal(at))

	_, ok = readReapMarker(filepath.Join(dir, "missing"))
	assert.False(t, ok)
}
