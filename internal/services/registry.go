// Package services holds the table of configured Yggdrasil verification
// services. Service ids are assigned by configuration order and persisted
// user rows reference them, so removing or reordering entries makes old
// references resolve to the unknown sentinel instead of failing.
package services

import (
	"sync"
)

// UnknownServiceName is returned for service ids that are no longer
// present in the configuration
const UnknownServiceName = "unknown"

type Service struct {
	Id         int
	Name       string
	SessionUrl string
}

type Registry struct {
	mutex    sync.RWMutex
	services []*Service
}

func NewRegistry(services []*Service) *Registry {
	return &Registry{services: services}
}

// Reload replaces the whole table. Ids of the passed entries are expected
// to be already assigned by the configuration loader
func (r *Registry) Reload(services []*Service) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.services = services
}

func (r *Registry) All() []*Service {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Service, len(r.services))
	copy(result, r.services)

	return result
}

// ById returns nil when the id references a removed service
func (r *Registry) ById(id int) *Service {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, service := range r.services {
		if service.Id == id {
			return service
		}
	}

	return nil
}

func (r *Registry) NameById(id int) string {
	service := r.ById(id)
	if service == nil {
		return UnknownServiceName
	}

	return service.Name
}
