package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// LogRequest appends a failover execution to the request log
func (db *DB) LogRequest(ctx context.Context, log *models.RequestLog) error {
	attempts := log.Attempts
	if attempts == nil {
		attempts = []models.AttemptLog{}
	}
	rawAttempts, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("failed to encode attempts: %w", err)
	}

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	query := `
		INSERT INTO ai_request_logs (
			id, request_id, service_type, kind, provider, model, success,
			prompt_tokens, completion_tokens, total_tokens, duration_ms,
			failover_attempt, total_attempts, skipped_count, error_type,
			error_message, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.ExecContext(ctx,
		db.rebind(query),
		log.ID,
		log.RequestID,
		log.ServiceType,
		log.Kind,
		log.Provider,
		log.Model,
		log.Success,
		log.PromptTokens,
		log.CompletionTokens,
		log.TotalTokens,
		log.DurationMs,
		log.FailoverAttempt,
		log.TotalAttempts,
		log.SkippedCount,
		log.ErrorType,
		log.ErrorMessage,
		string(rawAttempts),
		createdAt.UTC(),
	)

	return err
}

// RecentRequestLogs returns the newest log rows, optionally for one service type
func (db *DB) RecentRequestLogs(ctx context.Context, serviceType string, limit int) ([]models.RequestLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, service_type, kind, provider, model, success,
		       prompt_tokens, completion_tokens, total_tokens, duration_ms,
		       failover_attempt, total_attempts, skipped_count, error_type,
		       error_message, attempts, created_at
		FROM ai_request_logs
	`
	args := []any{}
	if serviceType != "" {
		query += " WHERE service_type = ?"
		args = append(args, serviceType)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var logs []models.RequestLog
	for rows.Next() {
		var l models.RequestLog
		var rawAttempts string
		if err := rows.Scan(
			&l.ID,
			&l.RequestID,
			&l.ServiceType,
			&l.Kind,
			&l.Provider,
			&l.Model,
			&l.Success,
			&l.PromptTokens,
			&l.CompletionTokens,
			&l.TotalTokens,
			&l.DurationMs,
			&l.FailoverAttempt,
			&l.TotalAttempts,
			&l.SkippedCount,
			&l.ErrorType,
			&l.ErrorMessage,
			&rawAttempts,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if err := json.Unmarshal([]byte(rawAttempts), &l.Attempts); err != nil {
			return nil, fmt.Errorf("request log %s has invalid attempts: %w", l.ID, err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// ProviderStats aggregates request logs created at or after since, per serving provider
func (db *DB) ProviderStats(ctx context.Context, since time.Time) ([]models.ProviderStats, error) {
	query := `
		SELECT provider,
		       COUNT(*),
		       SUM(CASE WHEN success THEN 1 ELSE 0 END),
		       SUM(CASE WHEN success THEN 0 ELSE 1 END),
		       AVG(duration_ms)
		FROM ai_request_logs
		WHERE created_at >= ?
		GROUP BY provider
		ORDER BY provider
	`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var stats []models.ProviderStats
	for rows.Next() {
		var s models.ProviderStats
		if err := rows.Scan(&s.Provider, &s.Requests, &s.Successes, &s.Failures, &s.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// PruneRequestLogs deletes log rows older than before and reports how many were removed
func (db *DB) PruneRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM ai_request_logs WHERE created_at < ?`), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return res.RowsAffected()
}
