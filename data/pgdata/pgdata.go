// Package pgdata implements data.Client over PostgreSQL.
package pgdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/digitalt3/lms-client/data"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Client struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Select(ctx context.Context, q data.Query) (data.Result, error) {
	if err := checkIdents(append([]string{q.Table}, q.Columns...)...); err != nil {
		return data.Result{}, classify("select", q.Table, err)
	}

	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, col := range q.Columns {
			quoted[i] = pq.QuoteIdentifier(col)
		}
		cols = strings.Join(quoted, ", ")
	}

	where, args, err := whereClause(q.Filters, 1)
	if err != nil {
		return data.Result{}, classify("select", q.Table, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", cols, pq.QuoteIdentifier(q.Table), where)
	if q.Order != nil {
		if err := checkIdents(q.Order.Column); err != nil {
			return data.Result{}, classify("select", q.Table, err)
		}
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", pq.QuoteIdentifier(q.Order.Column), dir)
	}
	if q.Range != nil {
		n := q.Range.To - q.Range.From + 1
		if n < 0 {
			n = 0
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", n, q.Range.From)
	}

	rows, err := c.query(ctx, b.String(), args...)
	if err != nil {
		return data.Result{}, classify("select", q.Table, err)
	}

	res := data.Result{Rows: rows, Count: len(rows)}
	if q.Count {
		stmt := fmt.Sprintf("SELECT count(*) FROM %s%s", pq.QuoteIdentifier(q.Table), where)
		if err := c.db.GetContext(ctx, &res.Count, stmt, args...); err != nil {
			return data.Result{}, classify("select", q.Table, err)
		}
	}
	return res, nil
}

func (c *Client) Insert(ctx context.Context, table string, rows ...data.Row) ([]data.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	set := make(map[string]bool)
	for _, r := range rows {
		for col := range r {
			set[col] = true
		}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if err := checkIdents(append([]string{table}, cols...)...); err != nil {
		return nil, classify("insert", table, err)
	}

	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
	}

	var (
		args   []any
		values []string
	)
	for _, r := range rows {
		ph := make([]string, len(cols))
		for i, col := range cols {
			v, ok := r[col]
			if !ok {
				ph[i] = "DEFAULT"
				continue
			}
			args = append(args, v)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *",
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(values, ", "))

	out, err := c.query(ctx, stmt, args...)
	if err != nil {
		return nil, classify("insert", table, err)
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, table string, patch data.Row, filters ...data.Filter) ([]data.Row, error) {
	if len(filters) == 0 {
		return nil, classify("update", table, errPolicy("update without filters"))
	}
	if len(patch) == 0 {
		return nil, classify("update", table, errPolicy("empty patch"))
	}

	cols := make([]string, 0, len(patch))
	for col := range patch {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if err := checkIdents(append([]string{table}, cols...)...); err != nil {
		return nil, classify("update", table, err)
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, col := range cols {
		args = append(args, patch[col])
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args))
	}

	where, wargs, err := whereClause(filters, len(args)+1)
	if err != nil {
		return nil, classify("update", table, err)
	}
	args = append(args, wargs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", pq.QuoteIdentifier(table), strings.Join(sets, ", "), where)

	out, err := c.query(ctx, stmt, args...)
	if err != nil {
		return nil, classify("update", table, err)
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, table string, filters ...data.Filter) error {
	if len(filters) == 0 {
		return classify("delete", table, errPolicy("delete without filters"))
	}
	if err := checkIdents(table); err != nil {
		return classify("delete", table, err)
	}

	where, args, err := whereClause(filters, 1)
	if err != nil {
		return classify("delete", table, err)
	}

	stmt := fmt.Sprintf("DELETE FROM %s%s", pq.QuoteIdentifier(table), where)
	if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
		return classify("delete", table, err)
	}
	return nil
}

func (c *Client) query(ctx context.Context, stmt string, args ...any) ([]data.Row, error) {
	rows, err := c.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []data.Row
	for rows.Next() {
		r := make(map[string]any)
		if err := rows.MapScan(r); err != nil {
			return nil, err
		}
		out = append(out, data.Row(r))
	}
	return out, rows.Err()
}

func whereClause(filters []data.Filter, first int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	conds := make([]string, len(filters))
	args := make([]any, 0, len(filters))
	for i, f := range filters {
		if err := checkIdents(f.Column); err != nil {
			return "", nil, err
		}
		n := first + len(args)
		switch f.Op {
		case data.OpEq, "":
			conds[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(f.Column), n)
			args = append(args, f.Value)
		case data.OpIn:
			conds[i] = fmt.Sprintf("%s = ANY($%d)", pq.QuoteIdentifier(f.Column), n)
			args = append(args, pq.Array(f.Value))
		default:
			return "", nil, errPolicy(fmt.Sprintf("unsupported operator %q", f.Op))
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

type policyError string

func (e policyError) Error() string { return string(e) }

func errPolicy(msg string) error { return policyError(msg) }

func checkIdents(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return errPolicy(fmt.Sprintf("invalid identifier %q", n))
		}
	}
	return nil
}

func classify(op, table string, err error) error {
	kind := data.KindTransport

	var (
		pqErr *pq.Error
		pol   policyError
	)
	switch {
	case errors.As(err, &pol):
		kind = data.KindPolicy
	case errors.Is(err, sql.ErrNoRows):
		kind = data.KindNotFound
	case errors.As(err, &pqErr):
		switch {
		case pqErr.Code.Class() == "23":
			kind = data.KindConstraint
		case pqErr.Code == "42501":
			kind = data.KindPolicy
		}
	}

	return &data.Error{Op: op, Table: table, Kind: kind, Err: err}
}
