package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/query"
)

var (
	// ErrNotFound is returned when a collection does not exist
	ErrNotFound = errors.New("collection not found")
	// ErrAlreadyExists is returned on a duplicate collection name
	ErrAlreadyExists = errors.New("collection already exists")
	// ErrSystemCollection is returned on attempts to mutate a system collection
	ErrSystemCollection = errors.New("system collections are immutable")
)

// Registry stores collection metadata and owns each collection's physical
// backing table lifecycle.
type Registry struct {
	db *database.Connection
}

// NewRegistry creates a collection registry
func NewRegistry(db *database.Connection) *Registry {
	return &Registry{db: db}
}

// CreateRequest describes a new collection
type CreateRequest struct {
	Name        string  `json:"name"`
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Schema      Schema  `json:"schema"`
}

// Create validates the request, persists the metadata row, and creates the
// backing table with its created_at index and updated_at trigger.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Collection, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := req.Schema.Validate(); err != nil {
		return nil, err
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, display_name, description, schema_json) VALUES (?, ?, ?, ?)`,
		req.Name, req.DisplayName, req.Description, string(schemaJSON),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting collection metadata: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, stmt := range backingTableDDL(req.Name, req.Schema) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating backing table for %q: %w", req.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing collection create: %w", err)
	}

	log.Info().Str("collection", req.Name).Int64("id", id).Msg("Collection created")
	return r.GetByID(ctx, id)
}

// backingTableDDL renders the CREATE TABLE / INDEX / TRIGGER statements for a
// collection. Identifiers are quoted through the query package's helper; names
// already passed the [A-Za-z0-9_] validation.
func backingTableDDL(name string, s Schema) []string {
	table := query.QuoteIdentifier("records_" + name)

	cols := fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", query.QuoteIdentifier("id"))
	for _, f := range s.Fields {
		cols += fmt.Sprintf(", %s %s", query.QuoteIdentifier(f.Name), f.FieldType.ColumnType())
	}
	cols += fmt.Sprintf(", %s TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP", query.QuoteIdentifier("created_at"))
	cols += fmt.Sprintf(", %s TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP", query.QuoteIdentifier("updated_at"))

	return []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", table, cols),
		fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			query.QuoteIdentifier("idx_records_"+name+"_created_at"), table, query.QuoteIdentifier("created_at")),
		fmt.Sprintf("CREATE TRIGGER %s AFTER UPDATE ON %s FOR EACH ROW BEGIN UPDATE %s SET %s = CURRENT_TIMESTAMP WHERE %s = NEW.%s; END",
			query.QuoteIdentifier("trg_records_"+name+"_updated_at"), table, table,
			query.QuoteIdentifier("updated_at"), query.QuoteIdentifier("id"), query.QuoteIdentifier("id")),
	}
}

func dropDDL(name string) []string {
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s", query.QuoteIdentifier("trg_records_"+name+"_updated_at")),
		fmt.Sprintf("DROP INDEX IF EXISTS %s", query.QuoteIdentifier("idx_records_"+name+"_created_at")),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", query.QuoteIdentifier("records_"+name)),
	}
}

const collectionColumns = `id, name, display_name, description, schema_json, is_system, created_at, updated_at`

func scanCollection(row interface{ Scan(...interface{}) error }) (*Collection, error) {
	var (
		c          Collection
		schemaJSON string
	)
	err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Description, &schemaJSON, &c.IsSystem, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(schemaJSON), &c.Schema); err != nil {
		return nil, fmt.Errorf("unmarshaling schema for %q: %w", c.Name, err)
	}
	return &c, nil
}

// Get returns a collection by name
func (r *Registry) Get(ctx context.Context, name string) (*Collection, error) {
	row := r.db.DB().QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE name = ?`, name)
	return scanCollection(row)
}

// GetByID returns a collection by id
func (r *Registry) GetByID(ctx context.Context, id int64) (*Collection, error) {
	row := r.db.DB().QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	return scanCollection(row)
}

// List returns all collections ordered by name
func (r *Registry) List(ctx context.Context) ([]*Collection, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []*Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// UpdateRequest carries the mutable collection attributes. A nil Schema
// leaves the schema untouched.
type UpdateRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// Update mutates display_name, description, and (additively) the schema.
// Schema evolution is additive-only: existing fields must stay identical and
// new fields must not be required without a default. New fields become
// ALTER TABLE ADD COLUMN on the backing table.
func (r *Registry) Update(ctx context.Context, name string, req UpdateRequest) (*Collection, error) {
	existing, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing.IsSystem {
		return nil, ErrSystemCollection
	}

	var added []FieldDefinition
	newSchema := existing.Schema
	if req.Schema != nil {
		if err := req.Schema.Validate(); err != nil {
			return nil, err
		}
		added, err = diffAdditive(existing.Schema, *req.Schema)
		if err != nil {
			return nil, err
		}
		newSchema = *req.Schema
	}

	schemaJSON, err := json.Marshal(newSchema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	display := existing.DisplayName
	if req.DisplayName != nil {
		display = req.DisplayName
	}
	description := existing.Description
	if req.Description != nil {
		description = req.Description
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE collections SET display_name = ?, description = ?, schema_json = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		display, description, string(schemaJSON), existing.ID)
	if err != nil {
		return nil, fmt.Errorf("updating collection metadata: %w", err)
	}

	table := query.QuoteIdentifier(existing.TableName())
	for _, f := range added {
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, query.QuoteIdentifier(f.Name), f.FieldType.ColumnType())
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("adding column %q: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, existing.ID)
}

// diffAdditive returns the fields present in next but not in prev, rejecting
// any edit that retypes or drops an existing field.
func diffAdditive(prev, next Schema) ([]FieldDefinition, error) {
	verr := &ValidationError{}
	for _, old := range prev.Fields {
		repl := next.Field(old.Name)
		if repl == nil {
			verr.add("field %q cannot be dropped; schema edits are additive-only", old.Name)
			continue
		}
		if repl.FieldType != old.FieldType {
			verr.add("field %q cannot change type from %q to %q", old.Name, old.FieldType, repl.FieldType)
		}
	}
	var added []FieldDefinition
	for _, f := range next.Fields {
		if prev.Field(f.Name) == nil {
			if f.Required && f.Default == nil {
				verr.add("new field %q cannot be required without a default", f.Name)
				continue
			}
			added = append(added, f)
		}
	}
	return added, verr.orNil()
}

// Delete drops the backing table, index, and trigger and removes the metadata
// row in one transaction; permission rows cascade via foreign keys. A
// tombstone written first guards against a crash mid-drop: SweepTombstones
// retries the drop at startup.
func (r *Registry) Delete(ctx context.Context, name string) error {
	existing, err := r.Get(ctx, name)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return ErrSystemCollection
	}

	if _, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO collection_tombstones (collection_name) VALUES (?) ON CONFLICT (collection_name) DO NOTHING`,
		name); err != nil {
		return fmt.Errorf("writing tombstone: %w", err)
	}

	if err := r.dropCollection(ctx, name, existing.ID); err != nil {
		return err
	}

	if _, err := r.db.DB().ExecContext(ctx,
		`DELETE FROM collection_tombstones WHERE collection_name = ?`, name); err != nil {
		return fmt.Errorf("clearing tombstone: %w", err)
	}

	log.Info().Str("collection", name).Msg("Collection deleted")
	return nil
}

func (r *Registry) dropCollection(ctx context.Context, name string, id int64) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range dropDDL(name) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping backing objects for %q: %w", name, err)
		}
	}
	if id != 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting collection metadata: %w", err)
		}
	}
	return tx.Commit()
}

// SweepTombstones retries drops that were interrupted by a crash. Called once
// at startup after migrations.
func (r *Registry) SweepTombstones(ctx context.Context) error {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT collection_name FROM collection_tombstones`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range names {
		var id int64
		err := r.db.DB().QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := r.dropCollection(ctx, name, id); err != nil {
			return err
		}
		if _, err := r.db.DB().ExecContext(ctx,
			`DELETE FROM collection_tombstones WHERE collection_name = ?`, name); err != nil {
			return err
		}
		log.Warn().Str("collection", name).Msg("Swept interrupted collection drop")
	}
	return nil
}

// CollectionStats is the per-collection row count summary
type CollectionStats struct {
	Name        string    `json:"name"`
	RecordCount int64     `json:"record_count"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats returns row counts for every collection
func (r *Registry) Stats(ctx context.Context) ([]CollectionStats, error) {
	collections, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]CollectionStats, 0, len(collections))
	for _, c := range collections {
		var count int64
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", query.QuoteIdentifier(c.TableName()))
		if err := r.db.DB().QueryRowContext(ctx, q).Scan(&count); err != nil {
			return nil, fmt.Errorf("counting records for %q: %w", c.Name, err)
		}
		stats = append(stats, CollectionStats{
			Name:        c.Name,
			RecordCount: count,
			IsSystem:    c.IsSystem,
			CreatedAt:   c.CreatedAt,
		})
	}
	return stats, nil
}
