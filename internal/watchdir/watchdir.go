// Package watchdir watches a directory of `.nc` program files and
// publishes the current file list whenever it changes, backing the
// `watchdir:load` client convenience (browse+load a program without
// the client tracking the filesystem itself) named in SPEC_FULL.md's
// domain stack. Grounded on `github.com/fsnotify/fsnotify`, already a
// transitive dependency of the teacher's viper-based config loader and
// promoted here to a direct import rather than polling the directory
// with `os.ReadDir` on a timer.
package watchdir

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher tracks the `.nc` files in one directory.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	onChange func([]string)
}

// New creates a Watcher over dir. onChange fires with the sorted list
// of `.nc` filenames every time the directory's contents change,
// including once immediately after Start with the initial listing.
func New(dir string, onChange func([]string), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		watcher:  fw,
		logger:   logger.With("component", "watchdir", "dir", dir),
		onChange: onChange,
	}, nil
}

// Start runs the watch loop until Close is called. It should be run in
// its own goroutine.
func (w *Watcher) Start() {
	w.emit()
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if strings.HasSuffix(strings.ToLower(ev.Name), ".nc") {
				w.emit()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Load reads name (which must live directly under the watched
// directory) and returns its contents, for feeding into
// Router.Command("sender:load", ...).
func (w *Watcher) Load(name string) (string, error) {
	path := filepath.Join(w.dir, filepath.Base(name))
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (w *Watcher) emit() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("list programs", "error", err)
		return
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".nc") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	w.onChange(names)
}
