// Package watch notices newly-dropped DICOM files in a local input
// directory, for the de-identify-local job type: unlike the PACS-driven
// job types, its input tree can receive files while the job is already
// running, so headers must be picked up as they land rather than only at
// job start.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDefault = 200 * time.Millisecond

// maxConcurrentJobs limits how many dropped files are handled simultaneously.
const maxConcurrentJobs = 5

// maxQueueSize bounds the work queue; must exceed maxConcurrentJobs to
// absorb a burst of simultaneously-arriving files without blocking the
// debounce flush.
const maxQueueSize = 200

// pollDefault is the polling interval PollWatcher uses as a fallback when
// fsnotify is unavailable (e.g. an NFS-mounted input directory).
const pollDefault = 5 * time.Second

// InboxWatcher watches a directory for newly-created .dcm files using
// fsnotify, debouncing bursts through a fixed worker pool rather than one
// goroutine per file.
type InboxWatcher struct {
	inbox    string
	handler  func(path string)
	debounce time.Duration
}

// NewInboxWatcher creates a watcher for the given input directory.
func NewInboxWatcher(inbox string, handler func(path string)) *InboxWatcher {
	return &InboxWatcher{inbox: inbox, handler: handler, debounce: debounceDefault}
}

// Run watches the inbox for new .dcm files until ctx is cancelled.
func (w *InboxWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.inbox); err != nil {
		return err
	}

	var mu sync.Mutex
	ready := make(map[string]bool)
	queue := make(chan string, maxQueueSize)

	var wg sync.WaitGroup
	for i := 0; i < maxConcurrentJobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				func() {
					defer func() { recover() }()
					w.handler(path)
				}()
			}
		}()
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()

		for _, p := range batch {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}

	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()

	defer func() {
		debounceTimer.Stop()
		flush()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isDicomFile(event.Name) {
				continue
			}
			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// PollWatcher watches a directory for new .dcm files by polling, used as a
// fallback when fsnotify is unavailable.
type PollWatcher struct {
	inbox    string
	handler  func(path string)
	interval time.Duration
	seen     map[string]bool
}

// NewPollWatcher creates a polling-based watcher.
func NewPollWatcher(inbox string, handler func(path string), interval time.Duration) *PollWatcher {
	if interval == 0 {
		interval = pollDefault
	}
	return &PollWatcher{inbox: inbox, handler: handler, interval: interval, seen: make(map[string]bool)}
}

// Run polls the inbox directory until ctx is cancelled.
func (w *PollWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *PollWatcher) scan() {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.inbox, e.Name())
		if !isDicomFile(path) || w.seen[path] {
			continue
		}
		w.seen[path] = true
		w.handler(path)
	}
}

// ScanExisting processes every .dcm file already present in inbox, for
// startup: files dropped while the job wasn't running still get picked up.
func ScanExisting(inbox string, handler func(path string)) error {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(inbox, e.Name())
		if isDicomFile(path) {
			handler(path)
		}
	}
	return nil
}

func isDicomFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".dcm") && !strings.HasSuffix(name, ".tmp.dcm")
}
