// Package whitelist keeps the process-scoped allow list. The persisted
// configuration is the source of truth between restarts, but during a
// session lifetime this cache is authoritative until the next reload
package whitelist

import (
	"sort"
	"strings"
	"sync"
)

// Persister writes the current state back to the configuration source
type Persister interface {
	PersistWhitelist(enabled bool, names []string) error
}

func New(persister Persister) *Whitelist {
	return &Whitelist{
		persister: persister,
		names:     make(map[string]struct{}),
	}
}

type Whitelist struct {
	mutex     sync.RWMutex
	enabled   bool
	names     map[string]struct{}
	persister Persister
}

// Load replaces the whole state from the persisted configuration.
// Called at startup and on every reload
func (w *Whitelist) Load(enabled bool, names []string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.enabled = enabled
	w.names = make(map[string]struct{}, len(names))
	for _, name := range names {
		w.names[normalize(name)] = struct{}{}
	}
}

func (w *Whitelist) Enabled() bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.enabled
}

func (w *Whitelist) SetEnabled(enabled bool) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.enabled = enabled

	return w.persist()
}

// Add reports whether the membership actually changed, so the command
// surface can distinguish "added" from "already whitelisted"
func (w *Whitelist) Add(name string) (bool, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	name = normalize(name)
	if _, exists := w.names[name]; exists {
		return false, nil
	}

	w.names[name] = struct{}{}

	return true, w.persist()
}

func (w *Whitelist) Remove(name string) (bool, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	name = normalize(name)
	if _, exists := w.names[name]; !exists {
		return false, nil
	}

	delete(w.names, name)

	return true, w.persist()
}

func (w *Whitelist) Contains(name string) bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	_, exists := w.names[normalize(name)]

	return exists
}

func (w *Whitelist) Snapshot() []string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.snapshot()
}

// persist must be called under the write lock
func (w *Whitelist) persist() error {
	return w.persister.PersistWhitelist(w.enabled, w.snapshot())
}

func (w *Whitelist) snapshot() []string {
	names := make([]string, 0, len(w.names))
	for name := range w.names {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func normalize(name string) string {
	return strings.ToLower(name)
}
