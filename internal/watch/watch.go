// Package watch reports changes to compiled shaders so the renderer can
// rebuild its pipelines without restarting.
package watch

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// ShaderExt is the suffix of the files that trigger a reload.
const ShaderExt = ".spv"

// Watcher calls onChange from its own goroutine whenever a shader binary in
// the watched directory is created, written or renamed into place. The
// callback must not touch GPU objects.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	onChange func(path string)
	logger   *log.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(dir string, onChange func(path string), logger *log.Logger) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create file watcher")
	}
	if err := fsWatch.Add(dir); err != nil {
		fsWatch.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}

	w := &Watcher{
		fsnotify: fsWatch,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	logger.Info("watching shaders", "dir", dir)
	return w, nil
}

func isShader(e fsnotify.Event) bool {
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(e.Name), ShaderExt)
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if isShader(e) {
				w.logger.Debug("shader changed", "path", e.Name, "op", e.Op.String())
				w.onChange(e.Name)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			w.logger.Error("shader watcher", "err", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and waits for its goroutine. It is safe to call
// more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsnotify.Close()
		w.wg.Wait()
	})
	return errors.Wrap(err, "close file watcher")
}
