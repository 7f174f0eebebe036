package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rpattn/trialnotes/internal/db"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

const upsertSettingSuffix = `ON CONFLICT (name) DO UPDATE SET
	data = excluded.data,
	updated_at = excluded.updated_at`

type settingsRepository struct {
	db     *db.DB
	logger *logger.Logger
}

// NewSettingsRepository creates a settings repository over conn.
func NewSettingsRepository(conn *db.DB, log *logger.Logger) SettingsRepository {
	return &settingsRepository{db: conn, logger: log}
}

// Get returns the document stored under name or domain.ErrNotFound.
func (r *settingsRepository) Get(ctx context.Context, name string) (json.RawMessage, error) {
	query, args, err := r.db.Builder().Select("data").From("settings").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build settings query: %w", err)
	}

	var data string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setting %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		r.logger.Err(err).Str("func", "settingsRepository.Get").Str("name", name).Msg("failed to read setting")
		return nil, fmt.Errorf("failed to read setting %q: %w", name, err)
	}
	return json.RawMessage(data), nil
}

// Put stores data under name, replacing any previous document.
func (r *settingsRepository) Put(ctx context.Context, name string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("setting %q: invalid json document", name)
	}

	query, args, err := r.db.Builder().
		Insert("settings").
		Columns("name", "data", "updated_at").
		Values(name, string(data), time.Now().UTC()).
		Suffix(upsertSettingSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build settings upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Err(err).Str("func", "settingsRepository.Put").Str("name", name).Msg("failed to write setting")
		return fmt.Errorf("failed to write setting %q: %w", name, err)
	}
	return nil
}
