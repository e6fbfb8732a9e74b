package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry composes fetcher adapters with their persisted configuration.
// Adapters self-register at startup; configurations are bulk-loaded once
// per orchestrator invocation via LoadConfigurations, which also provisions
// a default (disabled) configuration for any adapter lacking one.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
	order    []string // registration order, for stable listing
	configs  *ConfigStore
	logger   *slog.Logger
}

// ActiveSource pairs an enabled fetcher with its configuration for one run.
type ActiveSource struct {
	Fetcher Fetcher
	Config  *Configuration
}

// NewRegistry creates a registry backed by the given configuration store.
func NewRegistry(configs *ConfigStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		fetchers: make(map[string]Fetcher),
		configs:  configs,
		logger:   logger,
	}
}

// Register adds a fetcher to the registry. A duplicate source id logs a
// warning and keeps the first registration; it is not an error.
func (r *Registry) Register(fetcher Fetcher) error {
	id, meta, err := probeFetcher(fetcher)
	if err != nil {
		return fmt.Errorf("register fetcher: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.fetchers[id]; exists {
		r.logger.Warn("duplicate fetcher registration ignored", "source", id)
		return nil
	}

	r.fetchers[id] = fetcher
	r.order = append(r.order, id)
	if meta.ConfigSchema != "" {
		if err := r.configs.RegisterConfigSchema(id, meta.ConfigSchema); err != nil {
			return fmt.Errorf("register fetcher %s: %w", id, err)
		}
	}
	r.logger.Info("registered fetcher", "source", id, "display_name", meta.DisplayName)
	return nil
}

// RegisterAdapter registers an adapter supplied as a plain value, the path
// taken by third-party adapters that cannot be compile-time checked. The
// capability set is validated first; an incomplete set is rejected with the
// missing methods named.
func (r *Registry) RegisterAdapter(v any) error {
	if err := ValidateCapabilities(v); err != nil {
		return fmt.Errorf("register adapter: %w", err)
	}
	fetcher, ok := v.(Fetcher)
	if !ok {
		return fmt.Errorf("register adapter: %T has the capability set but wrong signatures", v)
	}
	return r.Register(fetcher)
}

// probeFetcher derives the adapter's identity and metadata. A panicking
// SourceID or Metadata aborts registration and records the cause rather
// than crashing the caller.
func probeFetcher(fetcher Fetcher) (id string, meta SourceMetadata, err error) {
	if fetcher == nil {
		return "", SourceMetadata{}, fmt.Errorf("fetcher is nil")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("adapter identity probe panicked: %v", rec)
		}
	}()

	id = fetcher.SourceID()
	if id == "" {
		return "", SourceMetadata{}, fmt.Errorf("adapter returned empty source id")
	}
	meta = fetcher.Metadata()
	return id, meta, nil
}

// Get returns a registered fetcher by source id.
func (r *Registry) Get(sourceID string) (Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[sourceID]
	return f, ok
}

// SourceIDs returns registered source ids in registration order.
func (r *Registry) SourceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// LoadConfigurations bulk-loads all persisted configurations and provisions
// a default configuration for every registered fetcher that lacks one, so
// new adapters appear in the admin console without manual setup.
func (r *Registry) LoadConfigurations(ctx context.Context) error {
	if err := r.configs.LoadAll(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	fetchers := make([]Fetcher, 0, len(r.order))
	for _, id := range r.order {
		fetchers = append(fetchers, r.fetchers[id])
	}
	r.mu.RUnlock()

	for _, fetcher := range fetchers {
		if _, err := r.configs.CreateDefaultConfiguration(ctx, fetcher.Metadata()); err != nil {
			return fmt.Errorf("provision default configuration for %s: %w",
				fetcher.SourceID(), err)
		}
	}
	return nil
}

// EnabledFetchers returns the fetchers whose configuration is enabled,
// ordered by (priority asc, source_id asc). The ordering is load-bearing:
// when a run's budget is exhausted mid-run, lower-priority sources are
// simply not reached, and the next invocation continues from persisted
// per-source state rather than reshuffling.
func (r *Registry) EnabledFetchers(ctx context.Context) ([]ActiveSource, error) {
	configs, err := r.configs.EnabledConfigurations(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]ActiveSource, 0, len(configs))
	for _, cfg := range configs {
		fetcher, ok := r.fetchers[cfg.SourceID]
		if !ok {
			// Configuration row for an adapter not present in this build.
			r.logger.Warn("enabled source has no registered fetcher", "source", cfg.SourceID)
			continue
		}
		active = append(active, ActiveSource{Fetcher: fetcher, Config: cfg})
	}
	return active, nil
}
