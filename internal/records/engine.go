package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/query"
	"github.com/nexabase-io/nexabase/internal/schema"
)

var (
	// ErrNotFound is returned when no row matches the record id
	ErrNotFound = errors.New("record not found")
	// ErrEmptyUpdate is returned for an update with no fields
	ErrEmptyUpdate = errors.New("update payload is empty")
)

// Engine validates record payloads against the collection schema, executes
// the parameterized writes, and emits an event after each statement commits.
type Engine struct {
	db        *database.Connection
	publisher EventPublisher
}

// NewEngine creates a record engine. Pass NopPublisher when realtime is off.
func NewEngine(db *database.Connection, publisher EventPublisher) *Engine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Engine{db: db, publisher: publisher}
}

// columns is the fixed projection order: id, declared fields, timestamps
func columns(col *schema.Collection) []string {
	cols := make([]string, 0, len(col.Schema.Fields)+3)
	cols = append(cols, "id")
	cols = append(cols, col.Schema.FieldNames()...)
	cols = append(cols, "created_at", "updated_at")
	return cols
}

func (e *Engine) compiler(col *schema.Collection) *query.Compiler {
	fields := make(map[string]bool, len(col.Schema.Fields)+3)
	for name := range schema.SystemFields {
		fields[name] = true
	}
	var textFields []string
	for _, f := range col.Schema.Fields {
		fields[f.Name] = true
		if f.FieldType == schema.FieldText {
			textFields = append(textFields, f.Name)
		}
	}
	return &query.Compiler{
		Table:      col.TableName(),
		Columns:    columns(col),
		Fields:     fields,
		TextFields: textFields,
	}
}

func (e *Engine) scanOne(col *schema.Collection, row *sql.Row) (Record, error) {
	dest := make([]interface{}, len(col.Schema.Fields)+3)
	ptrs := make([]interface{}, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return project(&col.Schema, dest), nil
}

// Get reads a single record by id
func (e *Engine) Get(ctx context.Context, col *schema.Collection, id int64) (Record, error) {
	cols := columns(col)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = query.QuoteIdentifier(c)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(quoted, ", "),
		query.QuoteIdentifier(col.TableName()),
		query.QuoteIdentifier("id"))
	row := e.db.DB().QueryRowContext(ctx, stmt, id)
	return e.scanOne(col, row)
}

// Create validates the payload, inserts the declared fields, reads the row
// back by its rowid, and emits a Created event.
func (e *Engine) Create(ctx context.Context, col *schema.Collection, payload map[string]interface{}, callerID *int64) (Record, error) {
	values, err := ValidatePayload(&col.Schema, payload, false)
	if err != nil {
		return nil, err
	}

	// Stamp ownership fields from the caller when the schema declares them
	// and the payload left them empty.
	if callerID != nil {
		for _, name := range []string{"owner_id", "author_id"} {
			if f := col.Schema.Field(name); f != nil && values[name] == nil {
				if f.FieldType == schema.FieldNumber {
					values[name] = float64(*callerID)
				} else {
					values[name] = fmt.Sprintf("%d", *callerID)
				}
			}
		}
	}

	var cols []string
	var placeholders []string
	var args []interface{}
	for _, f := range col.Schema.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		cols = append(cols, query.QuoteIdentifier(f.Name))
		placeholders = append(placeholders, "?")
		args = append(args, v)
	}

	var stmt string
	if len(cols) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", query.QuoteIdentifier(col.TableName()))
	} else {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			query.QuoteIdentifier(col.TableName()),
			strings.Join(cols, ", "),
			strings.Join(placeholders, ", "))
	}

	res, err := e.db.DB().ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	rec, err := e.Get(ctx, col, id)
	if err != nil {
		return nil, err
	}

	e.publisher.Publish(Event{
		Collection: col.Name,
		Action:     ActionCreated,
		RecordID:   id,
		Record:     rec,
		UserID:     callerID,
	})
	return rec, nil
}

// Update validates the partial payload and issues a single UPDATE with
// updated_at refreshed. Zero matched rows is NotFound.
func (e *Engine) Update(ctx context.Context, col *schema.Collection, id int64, payload map[string]interface{}, callerID *int64) (Record, error) {
	values, err := ValidatePayload(&col.Schema, payload, true)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyUpdate
	}

	old, err := e.Get(ctx, col, id)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []interface{}
	for _, f := range col.Schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		sets = append(sets, query.QuoteIdentifier(f.Name)+" = ?")
		args = append(args, v)
	}
	sets = append(sets, query.QuoteIdentifier("updated_at")+" = CURRENT_TIMESTAMP")
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		query.QuoteIdentifier(col.TableName()),
		strings.Join(sets, ", "),
		query.QuoteIdentifier("id"))

	res, err := e.db.DB().ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	rec, err := e.Get(ctx, col, id)
	if err != nil {
		return nil, err
	}

	e.publisher.Publish(Event{
		Collection: col.Name,
		Action:     ActionUpdated,
		RecordID:   id,
		Record:     rec,
		OldRecord:  old,
		UserID:     callerID,
	})
	return rec, nil
}

// Delete removes the record by id. Zero matched rows is NotFound.
func (e *Engine) Delete(ctx context.Context, col *schema.Collection, id int64, callerID *int64) error {
	old, err := e.Get(ctx, col, id)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		query.QuoteIdentifier(col.TableName()),
		query.QuoteIdentifier("id"))
	res, err := e.db.DB().ExecContext(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	e.publisher.Publish(Event{
		Collection: col.Name,
		Action:     ActionDeleted,
		RecordID:   id,
		OldRecord:  old,
		UserID:     callerID,
	})

	log.Debug().Str("collection", col.Name).Int64("record_id", id).Msg("Record deleted")
	return nil
}

// List compiles the query parameters, runs the SELECT, and projects every row
// per the schema. It also returns the total count for the same filter.
func (e *Engine) List(ctx context.Context, col *schema.Collection, p query.Params) ([]Record, int64, error) {
	c := e.compiler(col)
	compiled, err := c.Compile(p)
	if err != nil {
		return nil, 0, err
	}

	rows, err := e.db.DB().QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		dest := make([]interface{}, len(col.Schema.Fields)+3)
		ptrs := make([]interface{}, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		out = append(out, project(&col.Schema, dest))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	count, err := c.CompileCount(p)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := e.db.DB().QueryRowContext(ctx, count.SQL, count.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting records: %w", err)
	}

	return out, total, nil
}
