package integrity

import (
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/org/servercatalog/internal/crypto"
)

// FileMonitor remembers the SHA-256 of a set of files and reports any that change.
type FileMonitor struct {
	mu        sync.Mutex
	checksums map[string]string
}

// NewFileMonitor snapshots paths. Files that cannot be read are skipped.
func NewFileMonitor(paths []string) *FileMonitor {
	m := &FileMonitor{checksums: make(map[string]string, len(paths))}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warn().Err(err).Str("file", p).Msg("cannot snapshot critical file")
			continue
		}
		m.checksums[p] = crypto.SHA256Hex(data)
	}
	return m
}

// Watched returns the files under observation.
func (m *FileMonitor) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.checksums))
	for p := range m.checksums {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Check rereads every watched file and returns those whose content changed.
// Read errors are logged and do not count as tampering.
func (m *FileMonitor) Check() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []string
	for p, want := range m.checksums {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warn().Err(err).Str("file", p).Msg("cannot verify critical file")
			continue
		}
		if crypto.SHA256Hex(data) != want {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}
