package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rpattn/trialnotes/internal/db"
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

var customFieldColumns = []string{
	"id", "created_at", "updated_at", "id_name", "data_type", "label",
	"description", "ai_description", "autocomplete_enabled", "is_disabled",
}

const upsertValueSuffix = `ON CONFLICT (entry_id, custom_field_id) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at`

type customFieldRepository struct {
	db     *db.DB
	logger *logger.Logger
}

// NewCustomFieldRepository creates a custom field repository over conn.
func NewCustomFieldRepository(conn *db.DB, log *logger.Logger) CustomFieldRepository {
	return &customFieldRepository{db: conn, logger: log}
}

func scanCustomField(s rowScanner) (domain.CustomFieldDefinition, error) {
	var (
		d        domain.CustomFieldDefinition
		dataType string
	)
	err := s.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt, &d.IDName, &dataType, &d.Label,
		&d.Description, &d.AIDescription, &d.AutocompleteEnabled, &d.IsDisabled)
	d.DataType = domain.FieldType(dataType)
	return d, err
}

// ListCustomFieldDefinitions returns every definition ordered by id.
func (r *customFieldRepository) ListCustomFieldDefinitions(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	query, args, err := r.db.Builder().Select(customFieldColumns...).From("custom_fields").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build custom fields query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).Str("func", "customFieldRepository.ListCustomFieldDefinitions").Msg("failed to query custom fields")
		return nil, fmt.Errorf("failed to query custom fields: %w", err)
	}
	defer rows.Close()

	defs := make([]domain.CustomFieldDefinition, 0, 16)
	for rows.Next() {
		d, err := scanCustomField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom field: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate custom fields: %w", err)
	}
	return defs, nil
}

// GetCustomField returns one definition.
func (r *customFieldRepository) GetCustomField(ctx context.Context, id int64) (domain.CustomFieldDefinition, error) {
	query, args, err := r.db.Builder().Select(customFieldColumns...).From("custom_fields").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to build custom field query: %w", err)
	}

	d, err := scanCustomField(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CustomFieldDefinition{}, fmt.Errorf("custom field %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to get custom field: %w", err)
	}
	return d, nil
}

// CreateCustomField validates and inserts a definition. A taken id name
// yields domain.ErrNameCollision.
func (r *customFieldRepository) CreateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error) {
	if err := def.Validate(); err != nil {
		return domain.CustomFieldDefinition{}, err
	}

	now := time.Now().UTC()
	query, args, err := r.db.Builder().
		Insert("custom_fields").
		Columns("created_at", "updated_at", "id_name", "data_type", "label", "description", "ai_description", "autocomplete_enabled", "is_disabled").
		Values(now, now, def.IDName, string(def.DataType), def.Label, def.Description, def.AIDescription, def.AutocompleteEnabled, def.IsDisabled).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to build insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&def.ID); err != nil {
		if db.IsUniqueViolation(err) {
			return domain.CustomFieldDefinition{}, fmt.Errorf("%w: custom field %q already exists", domain.ErrNameCollision, def.IDName)
		}
		r.logger.Err(err).Str("func", "customFieldRepository.CreateCustomField").Str("id_name", def.IDName).Msg("failed to insert custom field")
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to create custom field: %w", err)
	}
	def.CreatedAt = now
	def.UpdatedAt = now
	return def, nil
}

// UpdateCustomField rewrites the mutable columns of a definition.
func (r *customFieldRepository) UpdateCustomField(ctx context.Context, def domain.CustomFieldDefinition) (domain.CustomFieldDefinition, error) {
	if err := def.Validate(); err != nil {
		return domain.CustomFieldDefinition{}, err
	}

	now := time.Now().UTC()
	query, args, err := r.db.Builder().
		Update("custom_fields").
		SetMap(map[string]any{
			"updated_at":           now,
			"id_name":              def.IDName,
			"data_type":            string(def.DataType),
			"label":                def.Label,
			"description":          def.Description,
			"ai_description":       def.AIDescription,
			"autocomplete_enabled": def.AutocompleteEnabled,
			"is_disabled":          def.IsDisabled,
		}).
		Where(sq.Eq{"id": def.ID}).
		ToSql()
	if err != nil {
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.CustomFieldDefinition{}, fmt.Errorf("%w: custom field %q already exists", domain.ErrNameCollision, def.IDName)
		}
		r.logger.Err(err).Str("func", "customFieldRepository.UpdateCustomField").Int64("id", def.ID).Msg("failed to update custom field")
		return domain.CustomFieldDefinition{}, fmt.Errorf("failed to update custom field: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.CustomFieldDefinition{}, fmt.Errorf("custom field %d: %w", def.ID, domain.ErrNotFound)
	}
	def.UpdatedAt = now
	return def, nil
}

// DeleteCustomField removes a definition and, by cascade, its values.
func (r *customFieldRepository) DeleteCustomField(ctx context.Context, id int64) error {
	query, args, err := r.db.Builder().Delete("custom_fields").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).Str("func", "customFieldRepository.DeleteCustomField").Int64("id", id).Msg("failed to delete custom field")
		return fmt.Errorf("failed to delete custom field: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("custom field %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetValue upserts one value. Unknown entries or fields yield
// domain.ErrNotFound.
func (r *customFieldRepository) SetValue(ctx context.Context, entryID, customFieldID int64, value *string) error {
	now := time.Now().UTC()
	query, args, err := r.db.Builder().
		Insert("custom_field_entries").
		Columns("created_at", "updated_at", "custom_field_id", "entry_id", "value").
		Values(now, now, customFieldID, entryID, value).
		Suffix(upsertValueSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build value upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("entry %d or custom field %d: %w", entryID, customFieldID, domain.ErrNotFound)
		}
		r.logger.Err(err).
			Str("func", "customFieldRepository.SetValue").
			Int64("entry_id", entryID).
			Int64("custom_field_id", customFieldID).
			Msg("failed to upsert value")
		return fmt.Errorf("failed to set custom field value: %w", err)
	}
	return nil
}
