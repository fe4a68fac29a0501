package processor

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
)

// QueryKind distinguishes row listings from single-value aggregates
type QueryKind string

const (
	KindSelect    QueryKind = "select"
	KindAggregate QueryKind = "aggregate"
)

// AggregateFunc is one of the supported SQL aggregate functions
type AggregateFunc string

const (
	AggCount AggregateFunc = "COUNT"
	AggSum   AggregateFunc = "SUM"
	AggAvg   AggregateFunc = "AVG"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
)

// Direction is an ORDER BY direction
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Operator is a filter comparison operator
type Operator string

const (
	OpGTE     Operator = ">="
	OpLTE     Operator = "<="
	OpGT      Operator = ">"
	OpLT      Operator = "<"
	OpEQ      Operator = "="
	OpBetween Operator = "BETWEEN"
)

// AllRows is the aggregate column used by COUNT(*)
const AllRows = "*"

const (
	DefaultRowLimit = 100
	MaxRowLimit     = 100000
)

// DefaultColumns is the projection used for every Select intent
var DefaultColumns = []string{"lab_id", "protein", "fat", "weight", "expiry"}

// Filter is a single numeric predicate on a whitelisted column
type Filter struct {
	Column   string    `json:"column"`
	Operator Operator  `json:"operator"`
	Values   []float64 `json:"values"`
}

// DateWindow restricts rows to the last Days days of Column
type DateWindow struct {
	Column string `json:"column"`
	Days   int    `json:"days"`
}

// OrderBy is the single ordering applied to Select results
type OrderBy struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// Intent is the structured reading of a question
type Intent struct {
	Kind             QueryKind     `json:"kind"`
	Aggregate        AggregateFunc `json:"aggregate,omitempty"`
	AggregateColumn  string        `json:"aggregate_column,omitempty"`
	ProjectedColumns []string      `json:"projected_columns,omitempty"`
	Filters          []Filter      `json:"filters"`
	DateWindow       *DateWindow   `json:"date_window,omitempty"`
	OrderBy          *OrderBy      `json:"order_by,omitempty"`
	RowLimit         int           `json:"row_limit"`
}

type filterShape struct {
	op Operator
	re *regexp.Regexp
}

type aggKeyword struct {
	fn AggregateFunc
	re *regexp.Regexp
}

const (
	filterable = `(protein|fat|weight|expiry)`
	number     = `([0-9]+(?:\.[0-9]+)?)`
	maybeIs    = `(?:is\s+)?`
)

// IntentExtractor turns free text into an Intent using a fixed grammar
type IntentExtractor struct {
	aggregates   []aggKeyword
	countLike    *regexp.Regexp
	columns      *regexp.Regexp
	filterCols   *regexp.Regexp
	shapes       []filterShape
	orderDesc    []*regexp.Regexp
	orderAsc     []*regexp.Regexp
	limitLead    *regexp.Regexp
	limitTrail   *regexp.Regexp
	lastDays     *regexp.Regexp
	freshness    *regexp.Regexp
	maxRowLimit  int
	defaultLimit int
}

// NewIntentExtractor creates an extractor with the standard grammar
func NewIntentExtractor() *IntentExtractor {
	return &IntentExtractor{
		aggregates: []aggKeyword{
			{AggCount, regexp.MustCompile(`\b(?:count|how many)\b`)},
			{AggSum, regexp.MustCompile(`\bsum\b`)},
			{AggAvg, regexp.MustCompile(`\b(?:avg|average)\b`)},
			{AggMin, regexp.MustCompile(`\b(?:min|minimum)\b`)},
			{AggMax, regexp.MustCompile(`\b(?:max|maximum)\b`)},
		},
		countLike:  regexp.MustCompile(`\b(?:count|how many)\b`),
		columns:    regexp.MustCompile(`\b(lab_id|protein|fat|weight|expiry|created_at)\b`),
		filterCols: regexp.MustCompile(`\b` + filterable + `\b`),
		shapes: []filterShape{
			{OpGTE, regexp.MustCompile(`\b` + filterable + `\b\s*` + maybeIs + `(?:>=|greater than or equal to)\s*` + number)},
			{OpLTE, regexp.MustCompile(`\b` + filterable + `\b\s*` + maybeIs + `(?:<=|less than or equal to)\s*` + number)},
			{OpGT, regexp.MustCompile(`\b` + filterable + `\b\s*` + maybeIs + `(?:>|greater than|higher than|more than|above)\s*` + number)},
			{OpLT, regexp.MustCompile(`\b` + filterable + `\b\s*` + maybeIs + `(?:<|less than|lower than|below)\s*` + number)},
			{OpEQ, regexp.MustCompile(`\b` + filterable + `\b\s*(?:is equal to|equal to|equals|equal|is|=)\s*` + number)},
			{OpBetween, regexp.MustCompile(`\b` + filterable + `\b\s*` + maybeIs + `between\s*` + number + `\s*and\s*` + number)},
		},
		orderDesc: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:top|highest|largest)\b`),
			regexp.MustCompile(`order by .*desc`),
		},
		orderAsc: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:lowest|smallest|least|min)\b`),
			regexp.MustCompile(`order by .*asc`),
		},
		limitLead:    regexp.MustCompile(`\b(?:limit|top|first|give me)\s*(\d+)`),
		limitTrail:   regexp.MustCompile(`\b(\d{2,})\s*(?:results|rows|items|entries)\b`),
		lastDays:     regexp.MustCompile(`\blast\s+(\d{1,4})\s+days?\b`),
		freshness:    regexp.MustCompile(`\b(?:expiring soon|expire soon|expires soon|nearest expir(?:y|ing)|soonest expir(?:y|ing)|soonest to expire)\b`),
		maxRowLimit:  MaxRowLimit,
		defaultLimit: DefaultRowLimit,
	}
}

// WithMaxRowLimit lowers the row ceiling applied to requested limits
func (e *IntentExtractor) WithMaxRowLimit(n int) *IntentExtractor {
	if n > 0 && n <= MaxRowLimit {
		e.maxRowLimit = n
	}
	return e
}

// Extract reads a question and returns its intent. It only fails for blank input.
func (e *IntentExtractor) Extract(text string) (*Intent, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, apperrors.NewEmptyPromptError()
	}
	lower := strings.ToLower(raw)

	intent := &Intent{
		Kind:     KindSelect,
		Filters:  []Filter{},
		RowLimit: e.defaultLimit,
	}

	e.detectAggregate(lower, intent)
	e.detectFilters(lower, intent)
	e.detectOrdering(lower, intent)
	e.detectLimit(lower, intent)
	e.detectDateWindow(lower, intent)

	if e.freshness.MatchString(lower) {
		intent.OrderBy = &OrderBy{Column: "expiry", Direction: Asc}
	}

	if intent.Kind == KindAggregate && intent.AggregateColumn == "" && e.countLike.MatchString(lower) {
		intent.Aggregate = AggCount
		intent.AggregateColumn = AllRows
	}

	if intent.Kind == KindSelect {
		intent.ProjectedColumns = append([]string(nil), DefaultColumns...)
		if intent.OrderBy == nil {
			intent.OrderBy = &OrderBy{Column: "protein", Direction: Desc}
		}
	}

	return intent, nil
}

// detectAggregate picks the earliest aggregate keyword that is followed by a
// whitelisted column. A count-like keyword with no column still marks the
// intent as an aggregate so the fallback can turn it into COUNT(*).
func (e *IntentExtractor) detectAggregate(lower string, intent *Intent) {
	bestPos := -1
	var bestFn AggregateFunc
	var bestCol string

	for _, kw := range e.aggregates {
		for _, loc := range kw.re.FindAllStringIndex(lower, -1) {
			if bestPos >= 0 && loc[0] >= bestPos {
				break
			}
			m := e.columns.FindStringSubmatch(lower[loc[1]:])
			if m == nil {
				continue
			}
			bestPos, bestFn, bestCol = loc[0], kw.fn, m[1]
			break
		}
	}

	if bestPos >= 0 {
		intent.Kind = KindAggregate
		intent.Aggregate = bestFn
		intent.AggregateColumn = bestCol
		return
	}

	if e.countLike.MatchString(lower) {
		intent.Kind = KindAggregate
		intent.Aggregate = AggCount
	}
}

// detectFilters takes the first match of each comparison shape
func (e *IntentExtractor) detectFilters(lower string, intent *Intent) {
	for _, shape := range e.shapes {
		m := shape.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		values := make([]float64, 0, 2)
		for _, raw := range m[2:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				break
			}
			values = append(values, v)
		}
		intent.Filters = append(intent.Filters, Filter{
			Column:   m[1],
			Operator: shape.op,
			Values:   values,
		})
	}
}

// detectOrdering applies the descending rule then the ascending rule, so
// ascending wins when both fire.
func (e *IntentExtractor) detectOrdering(lower string, intent *Intent) {
	col := e.filterCols.FindString(lower)
	if col == "" {
		return
	}
	if matchAny(e.orderDesc, lower) {
		intent.OrderBy = &OrderBy{Column: col, Direction: Desc}
	}
	if matchAny(e.orderAsc, lower) {
		intent.OrderBy = &OrderBy{Column: col, Direction: Asc}
	}
}

func (e *IntentExtractor) detectLimit(lower string, intent *Intent) {
	m := e.limitLead.FindStringSubmatch(lower)
	if m == nil {
		m = e.limitTrail.FindStringSubmatch(lower)
	}
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[1])
	if errors.Is(err, strconv.ErrRange) {
		n, err = e.maxRowLimit, nil
	}
	if err != nil || n <= 0 {
		return
	}
	if n > e.maxRowLimit {
		n = e.maxRowLimit
	}
	intent.RowLimit = n
}

func (e *IntentExtractor) detectDateWindow(lower string, intent *Intent) {
	m := e.lastDays.FindStringSubmatch(lower)
	if m == nil {
		return
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days <= 0 {
		return
	}
	intent.DateWindow = &DateWindow{Column: "created_at", Days: days}
	if intent.OrderBy == nil {
		intent.OrderBy = &OrderBy{Column: "created_at", Direction: Desc}
	}
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
