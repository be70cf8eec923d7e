package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// ListProviders returns every configured provider, enabled or not
func (db *DB) ListProviders(ctx context.Context) ([]models.Provider, error) {
	query := `
		SELECT id, name, type, base_url, enabled, config, created_at, updated_at
		FROM ai_providers
		ORDER BY name
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		var p models.Provider
		var rawConfig string
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.BaseURL, &p.Enabled, &rawConfig, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if err := json.Unmarshal([]byte(rawConfig), &p.Config); err != nil {
			return nil, fmt.Errorf("provider %s has invalid config: %w", p.Name, err)
		}
		providers = append(providers, p)
	}

	return providers, rows.Err()
}

// ListModels returns every model row across providers
func (db *DB) ListModels(ctx context.Context) ([]models.Model, error) {
	query := `
		SELECT id, provider_id, name, display_name, enabled, capabilities,
		       context_length, created_at, updated_at
		FROM ai_models
		ORDER BY provider_id, name
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var result []models.Model
	for rows.Next() {
		var m models.Model
		var rawCaps string
		if err := rows.Scan(&m.ID, &m.ProviderID, &m.Name, &m.DisplayName, &m.Enabled, &rawCaps,
			&m.ContextLength, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if err := json.Unmarshal([]byte(rawCaps), &m.Capabilities); err != nil {
			return nil, fmt.Errorf("model %s has invalid capabilities: %w", m.Name, err)
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

// ActiveMappings returns the active chain rows for a service type, ordered by
// priority then provider id
func (db *DB) ActiveMappings(ctx context.Context, serviceType string) ([]models.ServiceMapping, error) {
	query := `
		SELECT m.id, m.service_type, m.provider_id, p.name, m.model, m.priority,
		       m.active, m.created_at, m.updated_at
		FROM ai_service_mappings m
		JOIN ai_providers p ON p.id = m.provider_id
		WHERE m.service_type = ? AND m.active = ?
		ORDER BY m.priority ASC, m.provider_id ASC
	`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), serviceType, true)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var mappings []models.ServiceMapping
	for rows.Next() {
		var m models.ServiceMapping
		if err := rows.Scan(&m.ID, &m.ServiceType, &m.ProviderID, &m.ProviderName, &m.Model,
			&m.Priority, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		mappings = append(mappings, m)
	}

	return mappings, rows.Err()
}

// ServiceTypes lists every service type that has at least one mapping
func (db *DB) ServiceTypes(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT service_type FROM ai_service_mappings ORDER BY service_type`)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// UpsertProvider inserts or updates a provider by name and returns its id
func (db *DB) UpsertProvider(ctx context.Context, p *models.Provider) (int64, error) {
	config := p.Config
	if config == nil {
		config = map[string]any{}
	}
	rawConfig, err := json.Marshal(config)
	if err != nil {
		return 0, fmt.Errorf("failed to encode provider config: %w", err)
	}

	query := `
		INSERT INTO ai_providers (name, type, base_url, enabled, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			type = excluded.type,
			base_url = excluded.base_url,
			enabled = excluded.enabled,
			config = excluded.config,
			updated_at = excluded.updated_at
		RETURNING id
	`

	ts := now()
	var id int64
	err = db.conn.QueryRowContext(ctx, db.rebind(query),
		p.Name, p.Type, p.BaseURL, p.Enabled, string(rawConfig), ts, ts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}

	p.ID = id
	return id, nil
}

// UpsertModel inserts or updates a model by (provider, name) and returns its id
func (db *DB) UpsertModel(ctx context.Context, m *models.Model) (int64, error) {
	caps := m.Capabilities
	if caps == nil {
		caps = []string{}
	}
	rawCaps, err := json.Marshal(caps)
	if err != nil {
		return 0, fmt.Errorf("failed to encode model capabilities: %w", err)
	}

	query := `
		INSERT INTO ai_models (provider_id, name, display_name, enabled, capabilities,
		                       context_length, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, name) DO UPDATE SET
			display_name = excluded.display_name,
			enabled = excluded.enabled,
			capabilities = excluded.capabilities,
			context_length = excluded.context_length,
			updated_at = excluded.updated_at
		RETURNING id
	`

	ts := now()
	var id int64
	err = db.conn.QueryRowContext(ctx, db.rebind(query),
		m.ProviderID, m.Name, m.DisplayName, m.Enabled, string(rawCaps), m.ContextLength, ts, ts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}

	m.ID = id
	return id, nil
}

// ReplaceMappings atomically replaces the chain of one service type.
// Mappings may reference providers by ProviderName when ProviderID is zero.
func (db *DB) ReplaceMappings(ctx context.Context, serviceType string, mappings []models.ServiceMapping) error {
	seen := make(map[int]bool, len(mappings))
	for _, m := range mappings {
		if seen[m.Priority] {
			return fmt.Errorf("duplicate priority %d for service type %s", m.Priority, serviceType)
		}
		seen[m.Priority] = true
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM ai_service_mappings WHERE service_type = ?`), serviceType); err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	insert := db.rebind(`
		INSERT INTO ai_service_mappings (service_type, provider_id, model, priority, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	ts := now()
	for _, m := range mappings {
		providerID := m.ProviderID
		if providerID == 0 {
			err := tx.QueryRowContext(ctx, db.rebind(`SELECT id FROM ai_providers WHERE name = ?`), m.ProviderName).Scan(&providerID)
			if err == sql.ErrNoRows {
				return fmt.Errorf("unknown provider %q in %s chain", m.ProviderName, serviceType)
			}
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, insert, serviceType, providerID, m.Model, m.Priority, m.Active, ts, ts); err != nil {
			return fmt.Errorf("database error: %w", err)
		}
	}

	return tx.Commit()
}
