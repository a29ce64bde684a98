// Package data describes the remote data service the client orchestrates:
// table reads with filter, order and range, and row mutations. Rows travel
// as column maps, the same shape the REST data API hands back.
package data

import (
	"context"
	"errors"
	"fmt"
)

// Row is one record keyed by column name.
type Row map[string]any

// Op is a filter operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Filter restricts a query or mutation to rows whose Column matches Value.
// For OpIn, Value must be a slice.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is the equality filter used by almost every call site.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In matches any of the values in a slice.
func In(column string, values any) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

type Order struct {
	Column string
	Desc   bool
}

// Range selects rows From..To inclusive, zero based.
type Range struct {
	From int
	To   int
}

type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Order   *Order
	Range   *Range

	// Count asks for the number of matching rows, ignoring Range.
	Count bool
}

type Result struct {
	Rows  []Row
	Count int
}

// Client is the remote data capability.
type Client interface {
	Select(ctx context.Context, q Query) (Result, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	Update(ctx context.Context, table string, patch Row, filters ...Filter) ([]Row, error)
	Delete(ctx context.Context, table string, filters ...Filter) error
}

// First runs q and returns its first row. ok is false when nothing matched.
func First(ctx context.Context, c Client, q Query) (row Row, ok bool, err error) {
	q.Range = &Range{From: 0, To: 0}
	res, err := c.Select(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if len(res.Rows) == 0 {
		return nil, false, nil
	}
	return res.Rows[0], true, nil
}

// InsertOne inserts a single row and returns the stored version.
func InsertOne(ctx context.Context, c Client, table string, row Row) (Row, error) {
	rows, err := c.Insert(ctx, table, row)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, &Error{Op: "insert", Table: table, Kind: KindTransport, Err: fmt.Errorf("expected 1 returned row, got %d", len(rows))}
	}
	return rows[0], nil
}

// Kind classifies a remote failure.
type Kind int

const (
	KindTransport Kind = iota
	KindPolicy
	KindConstraint
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPolicy:
		return "policy"
	case KindConstraint:
		return "constraint"
	case KindNotFound:
		return "not found"
	default:
		return "transport"
	}
}

// Error is returned by every Client method on failure.
type Error struct {
	Op    string
	Table string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Table, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a constraint violation, such as a
// duplicate key on a unique index.
func IsConstraint(err error) bool {
	return kindOf(err) == KindConstraint
}

func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

func kindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return -1
}
