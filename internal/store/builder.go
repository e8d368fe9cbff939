package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour and the goose dialect name.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SelectBuilder SELECT query builder
type SelectBuilder struct {
	table      string
	selectCols []string
	whereConds []string
	orderBy    []string
	limitVal   int
	offsetVal  int
	args       []interface{}
}

// NewSelectBuilder creates a SELECT builder; no columns means *
func NewSelectBuilder(table string, cols ...string) *SelectBuilder {
	selectCols := cols
	if len(selectCols) == 0 {
		selectCols = []string{"*"}
	}

	return &SelectBuilder{
		table:      table,
		selectCols: selectCols,
		args:       make([]interface{}, 0),
	}
}

// Where adds a condition joined with AND
func (b *SelectBuilder) Where(condition string, args ...interface{}) *SelectBuilder {
	b.whereConds = append(b.whereConds, condition)
	b.args = append(b.args, args...)
	return b
}

// OrderBy adds ORDER BY terms
func (b *SelectBuilder) OrderBy(cols ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, cols...)
	return b
}

// Limit sets LIMIT
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limitVal = n
	return b
}

// Offset sets OFFSET
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offsetVal = n
	return b
}

// Args returns the bind arguments in placeholder order
func (b *SelectBuilder) Args() []interface{} {
	return b.args
}

// Build renders the statement for the dialect
func (b *SelectBuilder) Build(d Dialect) string {
	var query strings.Builder

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(b.selectCols, ", "))
	query.WriteString(" FROM " + b.table)

	if len(b.whereConds) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(b.whereConds, " AND "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limitVal > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT %d", b.limitVal))
	}
	if b.offsetVal > 0 {
		query.WriteString(fmt.Sprintf(" OFFSET %d", b.offsetVal))
	}

	return d.Rebind(query.String())
}

// Query runs the statement
func (b *SelectBuilder) Query(ctx context.Context, q Queryer, d Dialect) (*sql.Rows, error) {
	return q.QueryContext(ctx, b.Build(d), b.args...)
}

// QueryRow runs the statement expecting a single row
func (b *SelectBuilder) QueryRow(ctx context.Context, q Queryer, d Dialect) *sql.Row {
	return q.QueryRowContext(ctx, b.Build(d), b.args...)
}

// InsertBuilder INSERT builder for a single row
type InsertBuilder struct {
	table      string
	cols       []string
	args       []interface{}
	onConflict []string
}

// NewInsertBuilder creates an INSERT builder
func NewInsertBuilder(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Set adds a column and its value
func (i *InsertBuilder) Set(col string, val interface{}) *InsertBuilder {
	i.cols = append(i.cols, col)
	i.args = append(i.args, val)
	return i
}

// OnConflictDoNothing adds ON CONFLICT (...) DO NOTHING
func (i *InsertBuilder) OnConflictDoNothing(cols ...string) *InsertBuilder {
	i.onConflict = append(i.onConflict, cols...)
	return i
}

// Args returns the bind arguments
func (i *InsertBuilder) Args() []interface{} {
	return i.args
}

// Build renders the statement for the dialect
func (i *InsertBuilder) Build(d Dialect) string {
	var query strings.Builder

	query.WriteString("INSERT INTO " + i.table)
	query.WriteString(" (" + strings.Join(i.cols, ", ") + ")")

	placeholders := make([]string, len(i.cols))
	for j := range placeholders {
		placeholders[j] = "?"
	}
	query.WriteString(" VALUES (" + strings.Join(placeholders, ", ") + ")")

	if len(i.onConflict) > 0 {
		query.WriteString(" ON CONFLICT (" + strings.Join(i.onConflict, ", ") + ") DO NOTHING")
	}

	return d.Rebind(query.String())
}

// Exec runs the statement
func (i *InsertBuilder) Exec(ctx context.Context, q Queryer, d Dialect) (sql.Result, error) {
	return q.ExecContext(ctx, i.Build(d), i.args...)
}

// UpdateBuilder UPDATE builder. SET terms keep their insertion order so that bind arguments
// line up with placeholders.
type UpdateBuilder struct {
	table      string
	sets       []string
	conditions []string
	returning  []string
	args       []interface{}
}

// NewUpdateBuilder creates an UPDATE builder
func NewUpdateBuilder(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set assigns a bound value to a column
func (u *UpdateBuilder) Set(col string, val interface{}) *UpdateBuilder {
	u.sets = append(u.sets, col+" = ?")
	u.args = append(u.args, val)
	return u
}

// SetExpr assigns a raw SQL expression, e.g. "view_count = view_count + 1"
func (u *UpdateBuilder) SetExpr(expr string) *UpdateBuilder {
	u.sets = append(u.sets, expr)
	return u
}

// Where adds a condition joined with AND
func (u *UpdateBuilder) Where(condition string, args ...interface{}) *UpdateBuilder {
	u.conditions = append(u.conditions, condition)
	u.args = append(u.args, args...)
	return u
}

// Returning adds a RETURNING clause
func (u *UpdateBuilder) Returning(cols ...string) *UpdateBuilder {
	u.returning = append(u.returning, cols...)
	return u
}

// Args returns the bind arguments
func (u *UpdateBuilder) Args() []interface{} {
	return u.args
}

// Build renders the statement for the dialect
func (u *UpdateBuilder) Build(d Dialect) string {
	var query strings.Builder

	query.WriteString("UPDATE " + u.table)
	query.WriteString(" SET " + strings.Join(u.sets, ", "))

	if len(u.conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(u.conditions, " AND "))
	}

	if len(u.returning) > 0 {
		query.WriteString(" RETURNING " + strings.Join(u.returning, ", "))
	}

	return d.Rebind(query.String())
}

// Exec runs the statement
func (u *UpdateBuilder) Exec(ctx context.Context, q Queryer, d Dialect) (sql.Result, error) {
	return q.ExecContext(ctx, u.Build(d), u.args...)
}

// QueryRow runs the statement and reads its RETURNING row
func (u *UpdateBuilder) QueryRow(ctx context.Context, q Queryer, d Dialect) *sql.Row {
	return q.QueryRowContext(ctx, u.Build(d), u.args...)
}

// DeleteBuilder DELETE builder
type DeleteBuilder struct {
	table      string
	conditions []string
	returning  []string
	args       []interface{}
}

// NewDeleteBuilder creates a DELETE builder
func NewDeleteBuilder(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Where adds a condition joined with AND
func (d *DeleteBuilder) Where(condition string, args ...interface{}) *DeleteBuilder {
	d.conditions = append(d.conditions, condition)
	d.args = append(d.args, args...)
	return d
}

// Returning adds a RETURNING clause
func (d *DeleteBuilder) Returning(cols ...string) *DeleteBuilder {
	d.returning = append(d.returning, cols...)
	return d
}

// Args returns the bind arguments
func (d *DeleteBuilder) Args() []interface{} {
	return d.args
}

// Build renders the statement for the dialect
func (d *DeleteBuilder) Build(dialect Dialect) string {
	var query strings.Builder

	query.WriteString("DELETE FROM " + d.table)

	if len(d.conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(d.conditions, " AND "))
	}

	if len(d.returning) > 0 {
		query.WriteString(" RETURNING " + strings.Join(d.returning, ", "))
	}

	return dialect.Rebind(query.String())
}

// Exec runs the statement
func (d *DeleteBuilder) Exec(ctx context.Context, q Queryer, dialect Dialect) (sql.Result, error) {
	return q.ExecContext(ctx, d.Build(dialect), d.args...)
}

// Query runs the statement and returns its RETURNING rows
func (d *DeleteBuilder) Query(ctx context.Context, q Queryer, dialect Dialect) (*sql.Rows, error) {
	return q.QueryContext(ctx, d.Build(dialect), d.args...)
}

// QueryRow runs the statement and reads a single RETURNING row
func (d *DeleteBuilder) QueryRow(ctx context.Context, q Queryer, dialect Dialect) *sql.Row {
	return q.QueryRowContext(ctx, d.Build(dialect), d.args...)
}
