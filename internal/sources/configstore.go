package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atheneum-app/atheneum/internal/store"
)

// Configuration is the persisted per-source configuration row.
type Configuration = store.SourceConfiguration

// DefaultSourceID is the legacy default source. For backward compatibility
// with catalogs provisioned before per-source configuration existed, it is
// created enabled with priority 1; every other new source starts disabled
// with priority 100.
const DefaultSourceID = "openlibrary"

// Defaults applied when provisioning a configuration for a new source.
const (
	DefaultPriority    = 100
	DefaultRateLimitMS = 1000
	DefaultBatchSize   = 50
)

// ConfigurationPatch is a partial update to a configuration row. Nil fields
// are left untouched. SourceID and CreatedAt are present only so attempts
// to change them can be rejected explicitly.
type ConfigurationPatch struct {
	SourceID             *string        `json:"source_id,omitempty"`
	CreatedAt            *time.Time     `json:"created_at,omitempty"`
	Enabled              *bool          `json:"enabled,omitempty"`
	Priority             *int           `json:"priority,omitempty"`
	RateLimitMS          *int           `json:"rate_limit_ms,omitempty"`
	BatchSize            *int           `json:"batch_size,omitempty"`
	SourceSpecificConfig map[string]any `json:"source_specific_config,omitempty"`
}

// ConfigStore serves per-source configuration with a read-through cache.
// When the backing store fails on a bulk read, it degrades to the last
// cached snapshot rather than failing the caller.
type ConfigStore struct {
	mu       sync.RWMutex
	repo     store.ConfigRepo
	cache    map[string]*Configuration
	snapshot []*Configuration // last good EnabledConfigurations result
	schemas  map[string]*jsonschema.Schema
	logger   *slog.Logger
}

// NewConfigStore creates a ConfigStore over the given repository.
func NewConfigStore(repo store.ConfigRepo, logger *slog.Logger) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigStore{
		repo:    repo,
		cache:   make(map[string]*Configuration),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// RegisterConfigSchema compiles and installs the JSON Schema used to
// validate a source's source_specific_config.
func (c *ConfigStore) RegisterConfigSchema(sourceID, schemaJSON string) error {
	schema, err := jsonschema.CompileString(sourceID+".json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema for %s: %w", sourceID, err)
	}
	c.mu.Lock()
	c.schemas[sourceID] = schema
	c.mu.Unlock()
	return nil
}

// GetConfiguration returns the configuration for sourceID: cache first,
// then the persisted row. A source with no row returns (nil, nil).
func (c *ConfigStore) GetConfiguration(ctx context.Context, sourceID string) (*Configuration, error) {
	c.mu.RLock()
	cached, ok := c.cache[sourceID]
	c.mu.RUnlock()
	if ok {
		copied := *cached
		return &copied, nil
	}

	cfg, err := c.repo.GetSourceConfiguration(ctx, sourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[sourceID] = cfg
	c.mu.Unlock()
	copied := *cfg
	return &copied, nil
}

// LoadAll refreshes the cache from the backing store in one read.
func (c *ConfigStore) LoadAll(ctx context.Context) error {
	configs, err := c.repo.ListSourceConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("load source configurations: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*Configuration, len(configs))
	for _, cfg := range configs {
		c.cache[cfg.SourceID] = cfg
	}
	return nil
}

// EnabledConfigurations returns enabled configurations ordered by
// (priority asc, source_id asc). On storage failure it degrades to the
// last cached snapshot so a flaky backing store does not halt scheduling.
func (c *ConfigStore) EnabledConfigurations(ctx context.Context) ([]*Configuration, error) {
	configs, err := c.repo.ListSourceConfigurations(ctx)
	if err != nil {
		c.mu.RLock()
		snapshot := c.snapshot
		c.mu.RUnlock()
		if snapshot != nil {
			c.logger.Warn("configuration read failed, serving cached snapshot",
				"error", err, "sources", len(snapshot))
			return snapshot, nil
		}
		return nil, fmt.Errorf("enabled configurations: %w", err)
	}

	// The repository orders rows; filtering preserves that order.
	enabled := make([]*Configuration, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}

	c.mu.Lock()
	for _, cfg := range configs {
		c.cache[cfg.SourceID] = cfg
	}
	c.snapshot = enabled
	c.mu.Unlock()
	return enabled, nil
}

// UpdateConfiguration applies a partial update after validation. Attempts
// to change source_id or created_at are rejected before any write.
func (c *ConfigStore) UpdateConfiguration(ctx context.Context, sourceID string, patch ConfigurationPatch) (*Configuration, error) {
	if patch.SourceID != nil && *patch.SourceID != sourceID {
		return nil, &store.ValidationError{Field: "source_id", Reason: "immutable"}
	}
	if patch.CreatedAt != nil {
		return nil, &store.ValidationError{Field: "created_at", Reason: "immutable"}
	}

	current, err := c.GetConfiguration(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("source configuration %s: %w", sourceID, store.ErrNotFound)
	}

	updated := *current
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}
	if patch.Priority != nil {
		updated.Priority = *patch.Priority
	}
	if patch.RateLimitMS != nil {
		updated.RateLimitMS = *patch.RateLimitMS
	}
	if patch.BatchSize != nil {
		updated.BatchSize = *patch.BatchSize
	}
	if patch.SourceSpecificConfig != nil {
		updated.SourceSpecificConfig = patch.SourceSpecificConfig
	}

	if err := c.validate(&updated); err != nil {
		return nil, err
	}
	return c.save(ctx, &updated)
}

// SetEnabled flips the enabled flag. Enabling re-validates the whole row
// first: a source cannot be enabled while misconfigured.
func (c *ConfigStore) SetEnabled(ctx context.Context, sourceID string, enabled bool) (*Configuration, error) {
	current, err := c.GetConfiguration(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("source configuration %s: %w", sourceID, store.ErrNotFound)
	}

	updated := *current
	updated.Enabled = enabled
	if enabled {
		if err := c.validate(&updated); err != nil {
			return nil, fmt.Errorf("cannot enable %s: %w", sourceID, err)
		}
	}
	return c.save(ctx, &updated)
}

// CreateDefaultConfiguration provisions the default row for a source.
// Idempotent: an existing row is returned unchanged.
func (c *ConfigStore) CreateDefaultConfiguration(ctx context.Context, meta SourceMetadata) (*Configuration, error) {
	existing, err := c.GetConfiguration(ctx, meta.SourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	cfg := &Configuration{
		SourceID:    meta.SourceID,
		Enabled:     false,
		Priority:    DefaultPriority,
		RateLimitMS: meta.DefaultRateLimitMS,
		BatchSize:   meta.DefaultBatchSize,
	}
	if cfg.RateLimitMS <= 0 {
		cfg.RateLimitMS = DefaultRateLimitMS
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if meta.SourceID == DefaultSourceID {
		cfg.Enabled = true
		cfg.Priority = 1
	}

	c.logger.Info("provisioning default source configuration",
		"source", meta.SourceID, "enabled", cfg.Enabled, "priority", cfg.Priority)
	return c.save(ctx, cfg)
}

// validate applies the row-level rules: non-negative priority and rate
// limit, positive batch size, and a JSON-round-trippable (and, when the
// adapter publishes a schema, schema-valid) source-specific config.
func (c *ConfigStore) validate(cfg *Configuration) error {
	if cfg.Priority < 0 {
		return &store.ValidationError{Field: "priority", Reason: "must be non-negative"}
	}
	if cfg.RateLimitMS < 0 {
		return &store.ValidationError{Field: "rate_limit_ms", Reason: "must be non-negative"}
	}
	if cfg.BatchSize <= 0 {
		return &store.ValidationError{Field: "batch_size", Reason: "must be positive"}
	}

	if cfg.SourceSpecificConfig != nil {
		data, err := json.Marshal(cfg.SourceSpecificConfig)
		if err != nil {
			return &store.ValidationError{Field: "source_specific_config",
				Reason: "not JSON-serializable: " + err.Error()}
		}
		var roundTrip map[string]any
		if err := json.Unmarshal(data, &roundTrip); err != nil {
			return &store.ValidationError{Field: "source_specific_config",
				Reason: "not JSON-round-trippable: " + err.Error()}
		}

		c.mu.RLock()
		schema := c.schemas[cfg.SourceID]
		c.mu.RUnlock()
		if schema != nil {
			if err := schema.Validate(roundTrip); err != nil {
				return &store.ValidationError{Field: "source_specific_config",
					Reason: schemaFailure(err)}
			}
		}
	}
	return nil
}

func (c *ConfigStore) save(ctx context.Context, cfg *Configuration) (*Configuration, error) {
	if err := c.repo.SaveSourceConfiguration(ctx, cfg); err != nil {
		return nil, err
	}
	c.mu.Lock()
	copied := *cfg
	c.cache[cfg.SourceID] = &copied
	c.mu.Unlock()
	return cfg, nil
}

// schemaFailure flattens a jsonschema validation error to one line.
func schemaFailure(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return msg
}
