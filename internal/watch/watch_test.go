package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/deferred-renderer/internal/logging"
)

func TestIsShader(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "shaders/geometry.vert.spv", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "shaders/geometry.vert.SPV", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "shaders/composite.frag.spv", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "shaders/composite.frag.spv", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "shaders/composite.frag.spv", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "shaders/geometry.vert", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isShader(tt.event), "%s", tt.event)
	}
}

func TestWatcherReportsShaderWrites(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 16)
	w, err := New(dir, func(path string) { changed <- path }, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	shader := filepath.Join(dir, "geometry.frag.spv")
	require.NoError(t, os.WriteFile(shader, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	select {
	case got := <-changed:
		assert.Equal(t, shader, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), func(string) {}, logging.Discard())
	assert.Error(t, err)
}

func TestWatcherCloseTwice(t *testing.T) {
	w, err := New(t.TempDir(), func(string) {}, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
