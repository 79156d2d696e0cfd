package comms

import (
	"sync"
	"time"
)

// RegisteredService is the Service Registry's record for one running
// service.
type RegisteredService struct {
	ServiceID   string
	ServiceType string
	FirstSeen   time.Time
	LastSeen    time.Time
	State       State
}

// IsStale reports whether this service has missed too many heartbeats.
// staleAfter is heartbeatInterval * HeartbeatStaleAfterN.
func (r RegisteredService) IsStale(staleAfter time.Duration, now time.Time) bool {
	return now.Sub(r.LastSeen) > staleAfter
}

// Registry is the controller-side Service Registry: it tracks every
// service's lifecycle state from its RegistrationMessage and subsequent
// HeartbeatMessages.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*RegisteredService
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*RegisteredService)}
}

// Register records a new service's first sighting, or updates LastSeen if
// it was already known (a service may re-announce after a reconnect).
func (r *Registry) Register(serviceID, serviceType string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.services[serviceID]; ok {
		existing.LastSeen = now
		existing.State = StateRunning
		return
	}
	r.services[serviceID] = &RegisteredService{
		ServiceID:   serviceID,
		ServiceType: serviceType,
		FirstSeen:   now,
		LastSeen:    now,
		State:       StateRunning,
	}
}

// Heartbeat updates LastSeen and State for an already-registered service;
// a heartbeat from an unknown service_id is ignored.
func (r *Registry) Heartbeat(serviceID, state string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.services[serviceID]; ok {
		svc.LastSeen = now
		svc.State = State(state)
	}
}

// Deregister removes a service, called when its DeregistrationMessage
// arrives during shutdown.
func (r *Registry) Deregister(serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, serviceID)
}

// MarkStale transitions every service that has missed its heartbeat
// threshold to StateStopping-adjacent "STALE" bookkeeping — modeled here as
// a state string rather than a new State constant since STALE is a registry
// observation, not a transition the service itself goes through.
func (r *Registry) MarkStale(staleAfter time.Duration, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var staled []string
	for id, svc := range r.services {
		if svc.IsStale(staleAfter, now) && svc.State != "STALE" {
			svc.State = "STALE"
			staled = append(staled, id)
		}
	}
	return staled
}

// CountByType returns how many registered services of serviceType are in
// StateRunning, used by the controller to decide when every expected
// service has registered.
func (r *Registry) CountByType(serviceType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, svc := range r.services {
		if svc.ServiceType == serviceType && svc.State == StateRunning {
			n++
		}
	}
	return n
}

// All returns a snapshot of every registered service.
func (r *Registry) All() []RegisteredService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredService, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, *svc)
	}
	return out
}

// AllServiceIDsReverse returns every registered service id in reverse
// registration order, for the controller's teardown sequence.
func (r *Registry) AllServiceIDsReverse() []string {
	r.mu.RLock()
	all := make([]RegisteredService, 0, len(r.services))
	for _, svc := range r.services {
		all = append(all, *svc)
	}
	r.mu.RUnlock()

	// Sort by FirstSeen ascending then reverse, without importing sort for a
	// handful of services per run.
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].FirstSeen.Before(all[i].FirstSeen) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	ids := make([]string, len(all))
	for i, svc := range all {
		ids[len(all)-1-i] = svc.ServiceID
	}
	return ids
}
