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
	"github.com/rpattn/trialnotes/internal/valueloader"
)

// lookupChunk bounds the number of bound parameters per IN clause.
const lookupChunk = 500

var (
	entryColumns = []string{"id", "created_at", "updated_at", "nct_id", "title", "description", "notes", "raw_json", "history"}
	valueColumns = []string{"id", "created_at", "updated_at", "entry_id", "custom_field_id", "value"}
)

const upsertEntrySuffix = `ON CONFLICT (nct_id) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	raw_json = excluded.raw_json,
	history = excluded.history,
	updated_at = excluded.updated_at`

type entryRepository struct {
	db     *db.DB
	logger *logger.Logger
}

// NewEntryRepository creates an entry repository over conn.
func NewEntryRepository(conn *db.DB, log *logger.Logger) EntryRepository {
	return &entryRepository{db: conn, logger: log}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (domain.Entry, error) {
	var (
		e       domain.Entry
		raw     []byte
		history []byte
	)
	if err := s.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt, &e.NCTID, &e.Title, &e.Description, &e.Notes, &raw, &history); err != nil {
		return domain.Entry{}, err
	}

	var err error
	if e.RawJSON, err = domain.DecodeRawJSON(raw); err != nil {
		return domain.Entry{}, fmt.Errorf("decode raw json of entry %d: %w", e.ID, err)
	}
	if e.History, err = domain.DecodeHistory(history); err != nil {
		return domain.Entry{}, fmt.Errorf("decode history of entry %d: %w", e.ID, err)
	}
	return e, nil
}

// queryEntries runs q and releases the connection before returning.
func (r *entryRepository) queryEntries(ctx context.Context, q sq.SelectBuilder) ([]domain.Entry, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build entries query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).Str("func", "entryRepository.queryEntries").Msg("failed to query entries")
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0, 64)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// ListEntries returns every entry ordered by id with its custom field
// values attached.
func (r *entryRepository) ListEntries(ctx context.Context) ([]domain.Entry, error) {
	entries, err := r.queryEntries(ctx, r.db.Builder().Select(entryColumns...).From("entries").OrderBy("id"))
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	loader := valueloader.FromContext(ctx)
	if loader == nil {
		loader = valueloader.New(r, lookupChunk)
	}
	values, err := loader.LoadMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load custom field values: %w", err)
	}
	for i := range entries {
		entries[i].CustomFieldValues = values[entries[i].ID]
	}

	r.logger.Debug().Str("func", "entryRepository.ListEntries").Int("entries", len(entries)).Msg("entries listed")
	return entries, nil
}

// GetEntry returns one entry with its values.
func (r *entryRepository) GetEntry(ctx context.Context, id int64) (domain.Entry, error) {
	query, args, err := r.db.Builder().Select(entryColumns...).From("entries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to build entry query: %w", err)
	}

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("entry %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to get entry: %w", err)
	}

	values, err := valueloader.New(r, lookupChunk).Load(ctx, id)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to load custom field values: %w", err)
	}
	e.CustomFieldValues = values
	return e, nil
}

// FindByNCTIDs returns the stored entries among nctIDs keyed by nct id.
// Custom field values are not loaded.
func (r *entryRepository) FindByNCTIDs(ctx context.Context, nctIDs []string) (map[string]domain.Entry, error) {
	out := make(map[string]domain.Entry, len(nctIDs))
	for start := 0; start < len(nctIDs); start += lookupChunk {
		end := min(start+lookupChunk, len(nctIDs))
		entries, err := r.queryEntries(ctx, r.db.Builder().
			Select(entryColumns...).
			From("entries").
			Where(sq.Eq{"nct_id": nctIDs[start:end]}))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out[e.NCTID] = e
		}
	}
	return out, nil
}

func (r *entryRepository) insertBuilder(e domain.Entry, now time.Time) (sq.InsertBuilder, error) {
	raw, err := e.RawJSONBytes()
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("failed to marshal raw json of %s: %w", e.NCTID, err)
	}
	history, err := e.HistoryBytes()
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("failed to marshal history of %s: %w", e.NCTID, err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}
	return r.db.Builder().
		Insert("entries").
		Columns("created_at", "updated_at", "nct_id", "title", "description", "notes", "raw_json", "history").
		Values(created, now, e.NCTID, e.Title, e.Description, e.Notes, string(raw), string(history)), nil
}

// CreateEntry inserts a new entry and returns it with its id.
func (r *entryRepository) CreateEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	now := time.Now().UTC()
	ib, err := r.insertBuilder(entry, now)
	if err != nil {
		return domain.Entry{}, err
	}
	query, args, err := ib.Suffix("RETURNING id").ToSql()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to build insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Entry{}, fmt.Errorf("entry %s: %w", entry.NCTID, domain.ErrAlreadyExists)
		}
		r.logger.Err(err).Str("func", "entryRepository.CreateEntry").Str("nct_id", entry.NCTID).Msg("failed to insert entry")
		return domain.Entry{}, fmt.Errorf("failed to create entry: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	return entry, nil
}

// UpsertEntries writes entries in one transaction. Notes and custom field
// values of existing entries are kept.
func (r *entryRepository) UpsertEntries(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			ib, err := r.insertBuilder(e, now)
			if err != nil {
				return err
			}
			query, args, err := ib.Suffix(upsertEntrySuffix).ToSql()
			if err != nil {
				return fmt.Errorf("failed to build upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				r.logger.Err(err).Str("func", "entryRepository.UpsertEntries").Str("nct_id", e.NCTID).Msg("failed to upsert entry")
				return fmt.Errorf("failed to upsert entry %s: %w", e.NCTID, err)
			}
		}
		return nil
	})
}

// UpdateNotes replaces the free-text notes of an entry.
func (r *entryRepository) UpdateNotes(ctx context.Context, id int64, notes string) error {
	query, args, err := r.db.Builder().
		Update("entries").
		Set("notes", notes).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	return r.execOne(ctx, "entryRepository.UpdateNotes", id, query, args)
}

// DeleteEntry removes an entry and, by cascade, its values.
func (r *entryRepository) DeleteEntry(ctx context.Context, id int64) error {
	query, args, err := r.db.Builder().Delete("entries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	return r.execOne(ctx, "entryRepository.DeleteEntry", id, query, args)
}

func (r *entryRepository) execOne(ctx context.Context, fn string, id int64, query string, args []any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).Str("func", fn).Int64("id", id).Msg("failed to execute statement")
		return fmt.Errorf("failed to write entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListValuesByEntryIDs returns the custom field values of the given entries.
func (r *entryRepository) ListValuesByEntryIDs(ctx context.Context, entryIDs []int64) ([]domain.CustomFieldValue, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.db.Builder().
		Select(valueColumns...).
		From("custom_field_entries").
		Where(sq.Eq{"entry_id": entryIDs}).
		OrderBy("entry_id", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build values query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).Str("func", "entryRepository.ListValuesByEntryIDs").Int("entries", len(entryIDs)).Msg("failed to query values")
		return nil, fmt.Errorf("failed to query custom field values: %w", err)
	}
	defer rows.Close()

	values := make([]domain.CustomFieldValue, 0, len(entryIDs))
	for rows.Next() {
		var v domain.CustomFieldValue
		if err := rows.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt, &v.EntryID, &v.CustomFieldID, &v.Value); err != nil {
			return nil, fmt.Errorf("failed to scan custom field value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate custom field values: %w", err)
	}
	return values, nil
}
