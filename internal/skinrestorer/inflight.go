package skinrestorer

import (
	"sync"
)

// inflightRegistry tracks identities whose skin is being restored right
// now. Begin and End for the same key are mutually exclusive, so a new
// job can never sneak in between the completion check and the removal
type inflightRegistry struct {
	mutex    sync.Mutex
	inflight map[string]struct{}
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{
		inflight: make(map[string]struct{}),
	}
}

// TryBegin reports whether the caller became the only active job for the
// key. A false result means another job is in flight and the caller must
// drop its request
func (r *inflightRegistry) TryBegin(key string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.inflight[key]; exists {
		return false
	}

	r.inflight[key] = struct{}{}

	return true
}

func (r *inflightRegistry) End(key string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.inflight, key)
}
