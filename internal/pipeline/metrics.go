package pipeline

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Metrics is the mutex-guarded pipeline counters (files_received,
// files_saved, files_quarantined, stable_count), updated under mutual
// exclusion by the background poller and read by any caller.
type Metrics struct {
	mu               sync.Mutex
	filesReceived    int
	filesSaved       int
	filesQuarantined int
	stableCount      int
}

// Snapshot is an immutable point-in-time read of Metrics.
type Snapshot struct {
	FilesReceived    int
	FilesSaved       int
	FilesQuarantined int
	StableCount      int
}

// Snapshot returns the current metrics under lock.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		FilesReceived:    m.filesReceived,
		FilesSaved:       m.filesSaved,
		FilesQuarantined: m.filesQuarantined,
		StableCount:      m.stableCount,
	}
}

// update publishes one poll tick's observations: stability is received =
// saved + quarantined; stable_count increments on a stable tick and resets
// to 0 otherwise.
func (m *Metrics) update(received, saved, quarantined int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.filesReceived = received
	m.filesSaved = saved
	m.filesQuarantined = quarantined

	if received == saved+quarantined {
		m.stableCount++
	} else {
		m.stableCount = 0
	}
}

// IsComplete reports the quiescence heuristic: stable_count > 3 means four
// consecutive stable polls with no observed motion. This is a heuristic
// signal, not proof of completion.
func (m *Metrics) IsComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stableCount > 3
}

// countQuarantineFiles walks the configured quarantine subtrees, counting
// regular files while skipping dotfiles and the two named index files. A
// file that disappears mid-walk is simply not counted that tick.
func countQuarantineFiles(roots []string, skipNames map[string]bool) int {
	total := 0
	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // tolerate races: treat as "not counted this tick"
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipNames[name] {
				return nil
			}
			total++
			return nil
		})
	}
	return total
}

var (
	savedCounterRe    = regexp.MustCompile(`Files actually stored:\s*(\d+)`)
	receivedCounterRe = regexp.MustCompile(`Archive files supplied:\s*(\d+)`)
)

// parseStatusPage extracts the "Files actually stored: <n>" and "Archive
// files supplied: <n>" integer counters from the daemon's status HTML via
// regex.
func parseStatusPage(html string) (saved, received int, ok bool) {
	sm := savedCounterRe.FindStringSubmatch(html)
	rm := receivedCounterRe.FindStringSubmatch(html)
	if sm == nil || rm == nil {
		return 0, 0, false
	}
	saved, errS := strconv.Atoi(sm[1])
	received, errR := strconv.Atoi(rm[1])
	if errS != nil || errR != nil {
		return 0, 0, false
	}
	return saved, received, true
}
