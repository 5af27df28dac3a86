// Package runtime provides a service registry that lets a node start,
// stop and introspect a collection of long-running services without
// each of them knowing about the others.
package runtime

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "runtime")

// Service is anything with a start/stop lifecycle that the registry can
// drive. Status returns a non-nil error if the service is unhealthy.
type Service interface {
	Start()
	Stop() error
	Status() error
}

// ServiceRegistry tracks service instances and their initialization order,
// mirroring the registry pattern used to wire together a beacon-chain
// node's collaborating services.
type ServiceRegistry struct {
	mu       sync.Mutex
	services map[reflect.Type]Service
	order    []reflect.Type
}

// NewServiceRegistry returns a ready-to-use, empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[reflect.Type]Service),
	}
}

// RegisterService adds a new service to the registry. Two services of the
// same concrete type cannot be registered.
func (r *ServiceRegistry) RegisterService(service Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := reflect.TypeOf(service)
	if _, exists := r.services[kind]; exists {
		return fmt.Errorf("service already registered: %v", kind)
	}
	r.services[kind] = service
	r.order = append(r.order, kind)
	return nil
}

// FetchService looks up a previously registered service by its concrete
// type and assigns it to dest, which must be a non-nil pointer.
func (r *ServiceRegistry) FetchService(dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	element := reflect.ValueOf(dest).Elem()
	if kind := element.Kind(); kind != reflect.Interface && kind != reflect.Ptr {
		return fmt.Errorf("dest must be a pointer or interface, got %v", kind)
	}
	service, exists := r.services[element.Type()]
	if !exists {
		return fmt.Errorf("unknown service: %v", element.Type())
	}
	element.Set(reflect.ValueOf(service))
	return nil
}

// StartAll starts every registered service, in registration order.
func (r *ServiceRegistry) StartAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Infof("Starting %d services", len(r.order))
	for _, kind := range r.order {
		log.Debugf("Starting service %v", kind)
		r.services[kind].Start()
	}
}

// StopAll stops every registered service in reverse registration order,
// collecting but not interrupting on individual stop errors.
func (r *ServiceRegistry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		kind := r.order[i]
		service := r.services[kind]
		if err := service.Stop(); err != nil {
			log.Errorf("Could not stop service %v: %v", kind, err)
		}
	}
}

// Statuses returns the status of every registered service keyed by its
// type name.
func (r *ServiceRegistry) Statuses() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make(map[string]error, len(r.order))
	for _, kind := range r.order {
		statuses[kind.String()] = r.services[kind].Status()
	}
	return statuses
}
