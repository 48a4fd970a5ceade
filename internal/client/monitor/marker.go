package monitor

import (
	"os"
	"sync"
	"time"
)

// MemoryMarker is a MarkerStore that lives only as long as the process.
// Suitable for tests and embedded consumers without reload semantics.
type MemoryMarker struct {
	mu         sync.Mutex
	terminated bool
}

func (m *MemoryMarker) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

func (m *MemoryMarker) SetTerminated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
}

func (m *MemoryMarker) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = false
}

// FileMarker persists the terminated flag as a file, so the flag survives a
// reload of the owning tab runtime. Operations are best effort; a marker
// that cannot be written only costs the sticky behaviour, not correctness,
// because the gate re-rejects the stale session anyway.
type FileMarker struct {
	Path string
}

func (m *FileMarker) Terminated() bool {
	_, err := os.Stat(m.Path)
	return err == nil
}

func (m *FileMarker) SetTerminated() {
	_ = os.WriteFile(m.Path, []byte(time.Now().UTC().Format(time.RFC3339)), 0o600)
}

func (m *FileMarker) Clear() {
	_ = os.Remove(m.Path)
}
