package inventory

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the mods directory must be quiet before a rescan.
const DefaultDebounce = 200 * time.Millisecond

// Watcher rescans a mods directory whenever archives in it change and
// publishes each new inventory on Snapshots.
type Watcher struct {
	Dir       string
	Snapshots <-chan []InstalledMod

	snapshots chan []InstalledMod
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	logger    *log.Logger
}

// NewWatcher creates a watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ch := make(chan []InstalledMod, 4)
	return &Watcher{
		Dir:       dir,
		Snapshots: ch,
		snapshots: ch,
		done:      make(chan struct{}),
		watcher:   fw,
		debounce:  debounce,
		logger:    logger,
	}, nil
}

// Start begins watching the directory. If it fails the watcher is
// released and must not be started again.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.Dir); err != nil {
		w.Stop()
		return err
	}
	w.started = true
	go w.loop()
	return nil
}

// Stop closes the watcher and the Snapshots channel. It may be called
// before Start, and more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.watcher.Close()
		if w.started {
			<-w.done
		}
		close(w.snapshots)
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	var pending bool
	var last time.Time
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isArchive(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending = true
				last = time.Now()
			}

		case <-ticker.C:
			if pending && time.Since(last) >= w.debounce {
				pending = false
				w.rescan()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watch error", "dir", w.Dir, "err", err)
		}
	}
}

func (w *Watcher) rescan() {
	mods, err := ReadInstalled(w.Dir, w.logger)
	if err != nil {
		w.logger.Error("Rescan failed", "dir", w.Dir, "err", err)
		return
	}
	w.logger.Debug("Rescanned mods directory", "mods", len(mods))

	// Keep only the newest snapshot when the consumer lags
	select {
	case w.snapshots <- mods:
	default:
		select {
		case <-w.snapshots:
		default:
		}
		w.snapshots <- mods
	}
}

// isArchive ignores our own in-flight .tmp files.
func isArchive(name string) bool {
	return strings.HasSuffix(filepath.Base(name), ".zip")
}
