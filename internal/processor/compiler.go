package processor

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
)

// TableName is the quoted identifier of the only queryable table
const TableName = `"FoodReports"`

// TenantParam is the placeholder every compiled statement binds the lab id to
const TenantParam = "labId"

// AllowedColumns is the closed set of identifiers a statement may reference
var AllowedColumns = map[string]bool{
	"lab_id":     true,
	"protein":    true,
	"fat":        true,
	"weight":     true,
	"expiry":     true,
	"created_at": true,
}

var allowedOperators = map[Operator]bool{
	OpGTE: true, OpLTE: true, OpGT: true, OpLT: true, OpEQ: true, OpBetween: true,
}

// CompiledStatement is a parameterized statement ready for execution
type CompiledStatement struct {
	Template  string                 `json:"sql"`
	Params    map[string]interface{} `json:"params"`
	Canonical string                 `json:"canonical"`
	Summary   string                 `json:"summary"`
	TenantID  int64                  `json:"lab_id"`
	Intent    *Intent                `json:"intent,omitempty"`
}

// StatementCompiler builds statements from intents
type StatementCompiler struct {
	maxRowLimit int
}

// NewStatementCompiler creates a compiler with the standard row ceiling
func NewStatementCompiler() *StatementCompiler {
	return &StatementCompiler{maxRowLimit: MaxRowLimit}
}

// WithMaxRowLimit lowers the LIMIT ceiling
func (c *StatementCompiler) WithMaxRowLimit(n int) *StatementCompiler {
	if n > 0 && n <= MaxRowLimit {
		c.maxRowLimit = n
	}
	return c
}

// Compile validates the tenant and every referenced column, then builds the
// statement template, its parameters and the canonical form. The tenant
// predicate is always the first WHERE clause.
func (c *StatementCompiler) Compile(tenantID interface{}, intent *Intent) (*CompiledStatement, error) {
	if intent == nil {
		return nil, apperrors.NewInvalidInputError("intent", "missing intent")
	}

	labID, err := ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}

	if err := c.validate(intent); err != nil {
		return nil, err
	}

	params := map[string]interface{}{TenantParam: labID}
	where := []string{"lab_id = :" + TenantParam}

	for i, f := range intent.Filters {
		idx := i + 1
		if f.Operator == OpBetween {
			lo, hi := fmt.Sprintf("v%d_1", idx), fmt.Sprintf("v%d_2", idx)
			params[lo] = f.Values[0]
			params[hi] = f.Values[1]
			where = append(where, fmt.Sprintf("(%s BETWEEN :%s AND :%s)", f.Column, lo, hi))
			continue
		}
		name := fmt.Sprintf("v%d", idx)
		params[name] = f.Values[0]
		where = append(where, fmt.Sprintf("(%s %s :%s)", f.Column, f.Operator, name))
	}

	// the day count is a validated integer and is inlined, not bound
	if intent.DateWindow != nil && intent.DateWindow.Days > 0 {
		where = append(where, fmt.Sprintf("%s >= (now() - interval '%d days')",
			intent.DateWindow.Column, intent.DateWindow.Days))
	}

	var sb strings.Builder
	var summary string

	if intent.Kind == KindAggregate {
		arg := intent.AggregateColumn
		if arg == "" {
			arg = AllRows
		}
		fmt.Fprintf(&sb, "SELECT %s(%s) AS value FROM %s WHERE %s;",
			intent.Aggregate, arg, TableName, strings.Join(where, " AND "))
		summary = fmt.Sprintf("%s of %s for lab %d", intent.Aggregate, arg, labID)
	} else {
		cols := intent.ProjectedColumns
		if len(cols) == 0 {
			cols = DefaultColumns
		}
		quoted := make([]string, len(cols))
		for i, col := range cols {
			quoted[i] = quoteIdent(col)
		}
		fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE %s",
			strings.Join(quoted, ", "), TableName, strings.Join(where, " AND "))
		if intent.OrderBy != nil {
			dir := intent.OrderBy.Direction
			if dir != Asc {
				dir = Desc
			}
			fmt.Fprintf(&sb, " ORDER BY %s %s", quoteIdent(intent.OrderBy.Column), dir)
		}
		limit := intent.RowLimit
		if limit <= 0 {
			limit = DefaultRowLimit
		}
		if limit > c.maxRowLimit {
			limit = c.maxRowLimit
		}
		fmt.Fprintf(&sb, " LIMIT %d;", limit)
		summary = fmt.Sprintf("Selected rows for lab %d", labID)
	}

	template := sb.String()
	return &CompiledStatement{
		Template:  template,
		Params:    params,
		Canonical: EmbedParams(template, params),
		Summary:   summary,
		TenantID:  labID,
		Intent:    intent,
	}, nil
}

func (c *StatementCompiler) validate(intent *Intent) error {
	for _, f := range intent.Filters {
		if !AllowedColumns[f.Column] {
			return apperrors.NewDisallowedColumnError(f.Column)
		}
		if !allowedOperators[f.Operator] {
			return apperrors.NewInvalidInputError("operator", fmt.Sprintf("unsupported operator %q", f.Operator))
		}
		want := 1
		if f.Operator == OpBetween {
			want = 2
		}
		if len(f.Values) != want {
			return apperrors.NewInvalidInputError("filter", fmt.Sprintf("%s on %s needs %d value(s)", f.Operator, f.Column, want))
		}
	}

	if intent.DateWindow != nil && !AllowedColumns[intent.DateWindow.Column] {
		return apperrors.NewDisallowedColumnError(intent.DateWindow.Column)
	}

	switch intent.Kind {
	case KindAggregate:
		switch intent.Aggregate {
		case AggCount, AggSum, AggAvg, AggMin, AggMax:
		default:
			return apperrors.NewInvalidInputError("aggregate", fmt.Sprintf("unsupported aggregate %q", intent.Aggregate))
		}
		col := intent.AggregateColumn
		if col == AllRows || col == "" {
			if intent.Aggregate != AggCount {
				return apperrors.NewInvalidInputError("aggregate_column", "only COUNT may aggregate over all rows")
			}
		} else if !AllowedColumns[col] {
			return apperrors.NewDisallowedColumnError(col)
		}
	case KindSelect:
		for _, col := range intent.ProjectedColumns {
			if !AllowedColumns[col] {
				return apperrors.NewDisallowedColumnError(col)
			}
		}
	default:
		return apperrors.NewInvalidInputError("kind", fmt.Sprintf("unsupported kind %q", intent.Kind))
	}

	if intent.OrderBy != nil && !AllowedColumns[intent.OrderBy.Column] {
		return apperrors.NewDisallowedColumnError(intent.OrderBy.Column)
	}

	return nil
}

// ParseTenantID accepts an integer, an integral float, a json.Number or a
// string holding an integer.
func ParseTenantID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint32:
		return int64(t), nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1<<53 {
			return int64(t), nil
		}
	case json.Number:
		if n, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return n, nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, apperrors.NewInvalidTenantError(v)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// EmbedParams substitutes every :name placeholder with its literal value.
// The result is used as a cache key and for logging, never for execution.
func EmbedParams(template string, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := template
	for _, k := range keys {
		re := regexp.MustCompile(`:` + regexp.QuoteMeta(k) + `\b`)
		lit := FormatLiteral(params[k])
		out = re.ReplaceAllLiteralString(out, lit)
	}
	return out
}

// FormatLiteral renders a parameter value as a SQL literal
func FormatLiteral(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(t), "'", "''") + "'"
	}
}
