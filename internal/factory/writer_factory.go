package factory

import (
	"fmt"
	"sort"
	"sync"

	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
)

// WriterFactory creates a writer from its configuration entry.
type WriterFactory func(def config.WriterDef) (model.Writer, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the registered writer types, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled writer listed in cfg.Sinks.
func Create(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer

	for i, def := range cfg.Sinks.Writers {
		if !def.Enabled {
			continue
		}
		logging.Info().Str("type", def.Type).Str("interval", def.SnapshotInterval).Msg("Creating sink writer")

		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("sinks.writers[%d]: unknown writer type: '%s'", i, def.Type)
		}

		w, err := factory(def)
		if err != nil {
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}
