package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/avolkov/ocr-manager/internal/common"
)

// Factory constructs an engine instance. Construction is expensive (model
// loading), so the registry runs it at most once per name.
type Factory func() (Engine, error)

// Registry lazily constructs and caches engines by name. Concurrent first
// use of a name results in exactly one factory call; a failed construction
// is not cached, so a later Get may retry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	engines   map[string]Engine
	group     singleflight.Group
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		engines:   make(map[string]Engine),
		logger:    logger,
	}
}

// Register makes name constructible. Not safe to call concurrently with Get;
// wire all factories during startup.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered engine names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	return names
}

// Get returns the cached instance for name, constructing it on first demand.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[name]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, common.EngineInitError(name, "unknown engine", fmt.Errorf("no factory registered for %q", name))
	}

	// singleflight collapses concurrent first-use into one construction;
	// on error, nothing is cached and the name stays retryable.
	v, err, _ := r.group.Do(name, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.engines[name]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		r.logger.Info("constructing recognition engine", "engine", name)
		built, err := factory()
		if err != nil {
			r.logger.Error("engine construction failed", "engine", name, "error", err)
			return nil, common.EngineInitError(name, "construction failed", err)
		}

		r.mu.Lock()
		r.engines[name] = built
		r.mu.Unlock()
		r.logger.Info("recognition engine ready", "engine", name)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Engine), nil
}
