package present

import (
	"fmt"
	"sort"
	"sync"
)

// Backends is the set of collaborators frames are shown through.
type Backends struct {
	Swapchain SwapchainBackend
	Surfaces  SurfaceProvider
	Console   DisplayConsole
}

// BackendFactory creates the backends of a platform. It returns
// ErrBackendNotAvailable when the platform cannot present on this host.
type BackendFactory func() (Backends, error)

type registration struct {
	priority int
	factory  BackendFactory
}

var (
	registryMu sync.RWMutex
	backends   = make(map[string]registration)
)

func init() {
	RegisterBackend("null", 0, func() (Backends, error) {
		return Backends{
			Swapchain: NullSwapchain{},
			Surfaces:  NullSurfaceProvider{},
			Console:   &NullConsole{},
		}, nil
	})

	RegisterBackend("capture", 10, func() (Backends, error) {
		recorder := &Recorder{}

		return Backends{
			Swapchain: NewCaptureSwapchain(recorder),
			Surfaces:  CaptureSurfaces{Recorder: recorder},
			Console:   NewCaptureConsole(recorder),
		}, nil
	})
}

// RegisterBackend registers a platform under name. Higher priorities are
// tried first when no backend is named. Registering a name again replaces
// it.
func RegisterBackend(name string, priority int, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	backends[name] = registration{priority: priority, factory: factory}
}

// UnregisterBackend removes a platform.
func UnregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	delete(backends, name)
}

// AvailableBackends returns the registered names, highest priority first.
func AvailableBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	return sortedNames()
}

func sortedNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		pi, pj := backends[names[i]].priority, backends[names[j]].priority
		if pi != pj {
			return pi > pj
		}

		return names[i] < names[j]
	})

	return names
}

// Select creates the backends of the named platform, or of the first
// platform in priority order that is available when name is empty. Missing
// collaborators are filled with null ones.
func Select(name string) (Backends, string, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != "" {
		reg, ok := backends[name]
		if !ok {
			return Backends{}, "", fmt.Errorf("%w: %q is not registered",
				ErrBackendNotAvailable, name)
		}

		b, err := reg.factory()
		if err != nil {
			return Backends{}, "", fmt.Errorf("backend %q: %w", name, err)
		}

		return b.withDefaults(), name, nil
	}

	for _, n := range sortedNames() {
		b, err := backends[n].factory()
		if err == nil {
			return b.withDefaults(), n, nil
		}
	}

	return Backends{}, "", ErrBackendNotAvailable
}

func (b Backends) withDefaults() Backends {
	if b.Swapchain == nil {
		b.Swapchain = NullSwapchain{}
	}

	if b.Surfaces == nil {
		b.Surfaces = NullSurfaceProvider{}
	}

	if b.Console == nil {
		b.Console = &NullConsole{}
	}

	return b
}
