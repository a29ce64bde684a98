// Package memdata is an in-memory data.Client. It backs the offline demo mode
// and the tests, which use its failure injection and call log.
package memdata

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/validate"
	"github.com/shopspring/decimal"
)

// Call records one Client method invocation.
type Call struct {
	Op    string
	Table string
}

type Option func(*Store)

// Unique declares a unique index over cols of table.
func Unique(table string, cols ...string) Option {
	return func(s *Store) {
		s.uniques[table] = append(s.uniques[table], cols)
	}
}

// WithClock overrides the clock used for created_at defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu      sync.Mutex
	tables  map[string][]data.Row
	uniques map[string][][]string
	fail    map[string]error
	calls   []Call
	now     func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		tables:  make(map[string][]data.Row),
		uniques: make(map[string][][]string),
		fail:    make(map[string]error),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailOn makes every later op ("select", "insert", "update", "delete") on
// table fail with err classified as a transport error.
func (s *Store) FailOn(op, table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op+":"+table] = err
}

func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = make(map[string]error)
}

// Seed stores rows without recording calls or checking constraints.
func (s *Store) Seed(table string, rows ...data.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], s.withDefaults(r))
	}
}

// Rows returns a copy of every row in table.
func (s *Store) Rows(table string) []data.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.tables[table])
}

// Calls returns how many times op was invoked on table. An empty table
// counts op across all tables.
func (s *Store) Calls(op, table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op && (table == "" || c.Table == table) {
			n++
		}
	}
	return n
}

// Mutations counts insert, update and delete calls on any table.
func (s *Store) Mutations() int {
	return s.Calls("insert", "") + s.Calls("update", "") + s.Calls("delete", "")
}

func (s *Store) Select(ctx context.Context, q data.Query) (data.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, "select", q.Table); err != nil {
		return data.Result{}, err
	}

	matched, err := s.match(q.Table, q.Filters)
	if err != nil {
		return data.Result{}, err
	}

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Desc
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][col], matched[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	res := data.Result{Count: len(matched)}
	if q.Range != nil {
		from, to := q.Range.From, q.Range.To+1
		if from > len(matched) {
			from = len(matched)
		}
		if to > len(matched) {
			to = len(matched)
		}
		if to < from {
			to = from
		}
		matched = matched[from:to]
	}

	for _, r := range matched {
		res.Rows = append(res.Rows, project(r, q.Columns))
	}
	return res, nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...data.Row) ([]data.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, "insert", table); err != nil {
		return nil, err
	}

	pending := make([]data.Row, 0, len(rows))
	for _, r := range rows {
		r = s.withDefaults(r)
		for _, cols := range s.uniques[table] {
			if conflicts(append(s.tables[table], pending...), r, cols) {
				return nil, &data.Error{
					Op:    "insert",
					Table: table,
					Kind:  data.KindConstraint,
					Err:   fmt.Errorf("duplicate key value violates unique constraint on (%s)", strings.Join(cols, ", ")),
				}
			}
		}
		pending = append(pending, r)
	}

	s.tables[table] = append(s.tables[table], pending...)
	return cloneAll(pending), nil
}

func (s *Store) Update(ctx context.Context, table string, patch data.Row, filters ...data.Filter) ([]data.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, "update", table); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, &data.Error{Op: "update", Table: table, Kind: data.KindPolicy, Err: errors.New("update without filters")}
	}

	var out []data.Row
	for _, r := range s.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return nil, &data.Error{Op: "update", Table: table, Kind: data.KindPolicy, Err: err}
		}
		if !ok {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, table string, filters ...data.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, "delete", table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return &data.Error{Op: "delete", Table: table, Kind: data.KindPolicy, Err: errors.New("delete without filters")}
	}

	kept := s.tables[table][:0]
	for _, r := range s.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return &data.Error{Op: "delete", Table: table, Kind: data.KindPolicy, Err: err}
		}
		if !ok {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	return nil
}

func (s *Store) begin(ctx context.Context, op, table string) error {
	s.calls = append(s.calls, Call{Op: op, Table: table})
	if err := ctx.Err(); err != nil {
		return &data.Error{Op: op, Table: table, Kind: data.KindTransport, Err: err}
	}
	if err, ok := s.fail[op+":"+table]; ok {
		return &data.Error{Op: op, Table: table, Kind: data.KindTransport, Err: err}
	}
	return nil
}

func (s *Store) match(table string, filters []data.Filter) ([]data.Row, error) {
	var out []data.Row
	for _, r := range s.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return nil, &data.Error{Op: "select", Table: table, Kind: data.KindPolicy, Err: err}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) withDefaults(r data.Row) data.Row {
	r = r.Clone()
	if _, ok := r["id"]; !ok {
		r["id"] = validate.GenerateID()
	}
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = s.now().UTC()
	}
	return r
}

func matches(r data.Row, filters []data.Filter) (bool, error) {
	for _, f := range filters {
		switch f.Op {
		case data.OpEq, "":
			if compare(r[f.Column], f.Value) != 0 {
				return false, nil
			}
		case data.OpIn:
			v := reflect.ValueOf(f.Value)
			if v.Kind() != reflect.Slice {
				return false, fmt.Errorf("filter %s: in expects a slice, got %T", f.Column, f.Value)
			}
			found := false
			for i := 0; i < v.Len(); i++ {
				if compare(r[f.Column], v.Index(i).Interface()) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("filter %s: unsupported operator %q", f.Column, f.Op)
		}
	}
	return true, nil
}

func conflicts(existing []data.Row, r data.Row, cols []string) bool {
	for _, e := range existing {
		same := true
		for _, c := range cols {
			if compare(e[c], r[c]) != 0 {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// compare orders numbers numerically, times chronologically and everything
// else by its text form.
func compare(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	sa, sb := text(a), text(b)
	da, errA := decimal.NewFromString(sa)
	db, errB := decimal.NewFromString(sb)
	if errA == nil && errB == nil {
		return da.Cmp(db)
	}
	return strings.Compare(sa, sb)
}

func text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func project(r data.Row, cols []string) data.Row {
	if len(cols) == 0 {
		return r.Clone()
	}
	out := make(data.Row, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func cloneAll(rows []data.Row) []data.Row {
	out := make([]data.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Clone())
	}
	return out
}
