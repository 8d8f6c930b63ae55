package halcyon

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"halcyon-cms/pkg/ctxlog"
)

// Change is an external edit seen by a Watcher.
type Change struct {
	Source   string
	Dir      string
	FileName string
	Op       fsnotify.Op
}

// Watcher invalidates cache entries when templates of a file datasource are
// edited outside the process.
type Watcher struct {
	cache  *Cache
	source string
	root   string
	dirs   map[string]Directory

	// OnChange, when set, is called from the watch goroutine after each
	// invalidation.
	OnChange func(Change)

	watcher *fsnotify.Watcher
	started bool
	done    chan struct{}
}

// NewWatcher watches dirs below root, the on-disk root of the datasource
// registered as source.
func NewWatcher(cache *Cache, source, root string, dirs []Directory) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cache:   cache,
		source:  source,
		root:    root,
		dirs:    make(map[string]Directory, len(dirs)),
		watcher: fw,
		done:    make(chan struct{}),
	}
	for _, d := range dirs {
		w.dirs[d.Name] = d
	}
	return w, nil
}

// Start adds the watches and runs the event loop until ctx is done or Stop is
// called. Missing type directories are created so they can be watched. On
// error the watcher is closed and cannot be started again.
func (w *Watcher) Start(ctx context.Context) error {
	for name, d := range w.dirs {
		p := filepath.Join(w.root, filepath.FromSlash(name))
		if err := os.MkdirAll(p, 0o755); err != nil {
			w.watcher.Close()
			return err
		}
		if err := w.addTree(p, d.MaxNesting); err != nil {
			w.watcher.Close()
			return err
		}
	}
	w.started = true
	go w.loop(ctx)
	return nil
}

// Stop closes the watcher and waits for the loop to exit, if it was started.
func (w *Watcher) Stop() {
	w.watcher.Close()
	if w.started {
		<-w.done
	}
}

// addTree watches p and its subdirectories down to depth levels.
func (w *Watcher) addTree(p string, depth int) error {
	if err := w.watcher.Add(p); err != nil {
		return err
	}
	if depth <= 0 {
		return nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			if err := w.addTree(filepath.Join(p, e.Name()), depth-1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("template watcher error", "source", w.source, "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	d, fileName, ok := w.match(rel)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			depth := d.MaxNesting - strings.Count(fileName, "/") - 1
			if depth >= 0 {
				_ = w.addTree(event.Name, depth)
			}
			w.cache.InvalidateDir(w.source, d.Name)
			return
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return
		}
	}

	w.cache.Invalidate(w.source, d.Name, fileName)
	if w.OnChange != nil {
		w.OnChange(Change{Source: w.source, Dir: d.Name, FileName: fileName, Op: event.Op})
	}
}

// match finds the watched directory owning rel, preferring the longest name.
func (w *Watcher) match(rel string) (Directory, string, bool) {
	var (
		best  Directory
		found bool
	)
	for name, d := range w.dirs {
		if strings.HasPrefix(rel, name+"/") && (!found || len(name) > len(best.Name)) {
			best, found = d, true
		}
	}
	if !found {
		return Directory{}, "", false
	}
	return best, strings.TrimPrefix(rel, best.Name+"/"), true
}
