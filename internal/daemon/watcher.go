package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/synctogit/synctogit/internal/notes"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change of a stored document made outside of synctogit.
type FileEvent struct {
	Path string
	Op   EventOp
}

// FileWatcher watches a directory tree for changes of stored documents.
// fsnotify watches are not recursive, so every directory below the root
// gets its own watch, including directories created later.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	root    string
}

// NewFileWatcher creates a watcher. Call Start to begin watching.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start watches root and all of its subdirectories. root is created when
// missing.
func (fw *FileWatcher) Start(root string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", abs, err)
	}
	fw.root = abs

	if err := fw.addTree(abs); err != nil {
		return err
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()
	return nil
}

// Refresh adds watches for directories created since Start.
func (fw *FileWatcher) Refresh() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.running {
		return nil
	}
	return fw.addTree(fw.root)
}

func (fw *FileWatcher) addTree(root string) error {
	watched := make(map[string]bool)
	for _, p := range fw.watcher.WatchList() {
		watched[p] = true
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories may vanish while a sync pass runs.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() || watched[path] {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Stop stops watching and closes the channels.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)
	return nil
}

// Events returns the channel of document changes.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel of watcher errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					fw.mu.Lock()
					if err := fw.addTree(event.Name); err != nil {
						fw.sendError(err)
					}
					fw.mu.Unlock()
				}
			}
			if fileEvent, ok := convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.sendError(err)
		}
	}
}

func (fw *FileWatcher) sendError(err error) {
	select {
	case fw.errors <- err:
	default:
	}
}

// convertEvent keeps changes of stored documents only.
func convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if !strings.HasSuffix(event.Name, notes.DocumentExt) {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}
	return FileEvent{Path: event.Name, Op: op}, true
}

// IsRunning reports whether the watcher was started and not stopped.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
