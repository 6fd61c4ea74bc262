package watchfile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveye/oveye/internal/watchfile"
)

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gain: 1"), 0o644))

	loads := make(chan string, 4)
	w := watchfile.New(path, readString, nil,
		watchfile.WithDebounce[string](20*time.Millisecond))
	w.OnReload(func(v string) { loads <- v })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("gain: 2"), 0o644))

	select {
	case got := <-loads:
		assert.Equal(t, "gain: 2", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherSurvivesRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	loads := make(chan string, 4)
	w := watchfile.New(path, readString, nil,
		watchfile.WithDebounce[string](20*time.Millisecond))
	w.OnReload(func(v string) { loads <- v })
	require.NoError(t, w.Start())
	defer w.Stop()

	// Editors write a temp file then rename it over the target.
	tmp := filepath.Join(dir, ".controls.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case got := <-loads:
		assert.Equal(t, "new", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after rename")
	}
}

func TestWatcherDebounceCollapsesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	loads := make(chan string, 8)
	w := watchfile.New(path, readString, nil,
		watchfile.WithDebounce[string](150*time.Millisecond))
	w.OnReload(func(v string) { loads <- v })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("d"), 0o644))

	select {
	case got := <-loads:
		assert.Equal(t, "d", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	first := make(chan string, 4)
	second := make(chan string, 4)
	w := watchfile.New(path, readString, nil,
		watchfile.WithDebounce[string](20*time.Millisecond))
	unsub := w.OnReload(func(v string) { first <- v })
	w.OnReload(func(v string) { second <- v })
	unsub()
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("remaining handler not notified")
	}
	select {
	case v := <-first:
		t.Fatalf("unsubscribed handler notified with %q", v)
	default:
	}
}

func TestWatcherLoadErrorHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	wantErr := errors.New("parse failed")
	errs := make(chan error, 4)
	w := watchfile.New(path, func(string) (string, error) { return "", wantErr }, nil,
		watchfile.WithDebounce[string](20*time.Millisecond),
		watchfile.WithErrorHandler[string](func(err error) { errs <- err }))
	w.OnReload(func(string) { t.Error("handler ran despite load error") })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, wantErr)
	case <-time.After(5 * time.Second):
		t.Fatal("error handler not called")
	}
}
