package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetSourceConfiguration returns the configuration row for sourceID, or
// ErrNotFound.
func (s *SQLite) GetSourceConfiguration(ctx context.Context, sourceID string) (*SourceConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, enabled, priority, rate_limit_ms, batch_size,
		       source_specific_config, created_at, updated_at
		FROM source_configurations WHERE source_id = ?`, sourceID)

	cfg, err := scanSourceConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source configuration %s: %w", sourceID, ErrNotFound)
	}
	return cfg, err
}

// ListSourceConfigurations returns all configuration rows ordered by
// (priority asc, source_id asc). The ordering is relied on by the registry
// for fair cross-invocation scheduling.
func (s *SQLite) ListSourceConfigurations(ctx context.Context) ([]*SourceConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, enabled, priority, rate_limit_ms, batch_size,
		       source_specific_config, created_at, updated_at
		FROM source_configurations
		ORDER BY priority ASC, source_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list source configurations: %w", err)
	}
	defer rows.Close()

	var configs []*SourceConfiguration
	for rows.Next() {
		cfg, err := scanSourceConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// SaveSourceConfiguration upserts a configuration row keyed by source_id.
// CreatedAt is preserved for existing rows; UpdatedAt is always refreshed.
func (s *SQLite) SaveSourceConfiguration(ctx context.Context, cfg *SourceConfiguration) error {
	if cfg.SourceID == "" {
		return &ValidationError{Field: "source_id", Reason: "required"}
	}

	now := time.Now().UTC()
	cfg.UpdatedAt = now
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_configurations
			(source_id, enabled, priority, rate_limit_ms, batch_size,
			 source_specific_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			enabled = excluded.enabled,
			priority = excluded.priority,
			rate_limit_ms = excluded.rate_limit_ms,
			batch_size = excluded.batch_size,
			source_specific_config = excluded.source_specific_config,
			updated_at = excluded.updated_at`,
		cfg.SourceID, cfg.Enabled, cfg.Priority, cfg.RateLimitMS, cfg.BatchSize,
		marshalJSON(cfg.SourceSpecificConfig),
		cfg.CreatedAt.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save source configuration %s: %w", cfg.SourceID, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanSourceConfiguration(row scanner) (*SourceConfiguration, error) {
	var (
		cfg       SourceConfiguration
		rawConfig sql.NullString
		created   string
		updated   string
	)
	err := row.Scan(&cfg.SourceID, &cfg.Enabled, &cfg.Priority, &cfg.RateLimitMS,
		&cfg.BatchSize, &rawConfig, &created, &updated)
	if err != nil {
		return nil, err
	}

	if rawConfig.Valid && rawConfig.String != "" {
		if err := json.Unmarshal([]byte(rawConfig.String), &cfg.SourceSpecificConfig); err != nil {
			return nil, fmt.Errorf("source configuration %s: corrupt source_specific_config: %w",
				cfg.SourceID, err)
		}
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		cfg.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		cfg.UpdatedAt = t
	}
	return &cfg, nil
}
