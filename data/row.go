package data

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// String returns the column as text. Drivers hand back text, uuid and numeric
// columns in different Go types, so all of them are accepted.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Decimal returns the column as a decimal, zero when absent or unparsable.
func (r Row) Decimal(col string) decimal.Decimal {
	switch v := r[col].(type) {
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string, []byte:
		d, err := decimal.NewFromString(r.String(col))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func (r Row) Int(col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	case string, []byte:
		n, err := strconv.Atoi(r.String(col))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string, []byte:
		b, _ := strconv.ParseBool(r.String(col))
		return b
	default:
		return false
	}
}

func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case string, []byte:
		t, err := time.Parse(time.RFC3339Nano, r.String(col))
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Clone returns a shallow copy so callers can't mutate stored rows.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
