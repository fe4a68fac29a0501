package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/seanankenbruck/lab-query/internal/errors"
)

func TestExtractSelectIntents(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		filters  []Filter
		orderBy  *OrderBy
		rowLimit int
		dateDays int
	}{
		{
			name:     "greater than filter",
			prompt:   "protein greater than 10",
			filters:  []Filter{{Column: "protein", Operator: OpGT, Values: []float64{10}}},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "no filters uses defaults",
			prompt:   "show everything",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "top n",
			prompt:   "top 5 protein",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: 5,
		},
		{
			name:     "lowest",
			prompt:   "lowest fat",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "fat", Direction: Asc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "ascending wins over descending",
			prompt:   "highest protein lowest fat",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Asc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "between",
			prompt:   "protein between 5 and 10",
			filters:  []Filter{{Column: "protein", Operator: OpBetween, Values: []float64{5, 10}}},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "symbolic gte is not also read as gt",
			prompt:   "fat >= 3",
			filters:  []Filter{{Column: "fat", Operator: OpGTE, Values: []float64{3}}},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "equality with is",
			prompt:   "weight is 120",
			filters:  []Filter{{Column: "weight", Operator: OpEQ, Values: []float64{120}}},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:   "two shapes keep grammar order",
			prompt: "protein > 10 and fat < 5.5",
			filters: []Filter{
				{Column: "protein", Operator: OpGT, Values: []float64{10}},
				{Column: "fat", Operator: OpLT, Values: []float64{5.5}},
			},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "expiring soon orders by expiry",
			prompt:   "foods expiring soon",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "expiry", Direction: Asc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "freshness overrides ordering",
			prompt:   "top protein expiring soon",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "expiry", Direction: Asc},
			rowLimit: DefaultRowLimit,
		},
		{
			name:     "date window keeps explicit ordering",
			prompt:   "top protein in the last 7 days",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: DefaultRowLimit,
			dateDays: 7,
		},
		{
			name:     "trailing row count",
			prompt:   "protein above 2, 25 rows",
			filters:  []Filter{{Column: "protein", Operator: OpGT, Values: []float64{2}}},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: 25,
		},
		{
			name:     "limit is capped",
			prompt:   "limit 200000",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: MaxRowLimit,
		},
		{
			name:     "seven digit limit is capped",
			prompt:   "give me 1000000 rows",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: MaxRowLimit,
		},
		{
			name:     "limit beyond int range is capped",
			prompt:   "limit 99999999999999999999999",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: MaxRowLimit,
		},
		{
			name:     "exact maximum",
			prompt:   "give me 100000 rows",
			filters:  []Filter{},
			orderBy:  &OrderBy{Column: "protein", Direction: Desc},
			rowLimit: MaxRowLimit,
		},
	}

	extractor := NewIntentExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := extractor.Extract(tt.prompt)
			require.NoError(t, err)

			assert.Equal(t, KindSelect, intent.Kind)
			assert.Equal(t, DefaultColumns, intent.ProjectedColumns)
			assert.Equal(t, tt.filters, intent.Filters)
			assert.Equal(t, tt.orderBy, intent.OrderBy)
			assert.Equal(t, tt.rowLimit, intent.RowLimit)
			if tt.dateDays == 0 {
				assert.Nil(t, intent.DateWindow)
			} else {
				require.NotNil(t, intent.DateWindow)
				assert.Equal(t, tt.dateDays, intent.DateWindow.Days)
			}
		})
	}
}

func TestExtractAggregateIntents(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		fn      AggregateFunc
		column  string
		filters int
	}{
		{name: "average", prompt: "average fat", fn: AggAvg, column: "fat"},
		{name: "avg abbreviation", prompt: "avg weight", fn: AggAvg, column: "weight"},
		{name: "sum with filter", prompt: "sum of weight where protein > 10", fn: AggSum, column: "weight", filters: 1},
		{name: "max", prompt: "max protein", fn: AggMax, column: "protein"},
		{name: "minimum", prompt: "minimum expiry", fn: AggMin, column: "expiry"},
		{name: "count of a column", prompt: "count protein greater than 10", fn: AggCount, column: "protein", filters: 1},
		{name: "how many without column", prompt: "how many reports", fn: AggCount, column: AllRows},
		{name: "earliest keyword wins", prompt: "average protein and max fat", fn: AggAvg, column: "protein"},
	}

	extractor := NewIntentExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := extractor.Extract(tt.prompt)
			require.NoError(t, err)

			assert.Equal(t, KindAggregate, intent.Kind)
			assert.Equal(t, tt.fn, intent.Aggregate)
			assert.Equal(t, tt.column, intent.AggregateColumn)
			assert.Len(t, intent.Filters, tt.filters)
			assert.Empty(t, intent.ProjectedColumns)
		})
	}
}

func TestExtractCountInDateWindow(t *testing.T) {
	intent, err := NewIntentExtractor().Extract("How many entries in last 30 days")
	require.NoError(t, err)

	assert.Equal(t, KindAggregate, intent.Kind)
	assert.Equal(t, AggCount, intent.Aggregate)
	assert.Equal(t, AllRows, intent.AggregateColumn)
	assert.Equal(t, &DateWindow{Column: "created_at", Days: 30}, intent.DateWindow)
	assert.Equal(t, &OrderBy{Column: "created_at", Direction: Desc}, intent.OrderBy)
}

func TestExtractEmptyPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := NewIntentExtractor().Extract(prompt)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmptyPrompt), "prompt %q", prompt)
	}
}

func TestExtractIsCaseInsensitive(t *testing.T) {
	extractor := NewIntentExtractor()
	lower, err := extractor.Extract("protein greater than 10")
	require.NoError(t, err)
	upper, err := extractor.Extract("PROTEIN Greater Than 10")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestExtractorWithMaxRowLimit(t *testing.T) {
	extractor := NewIntentExtractor().WithMaxRowLimit(50)

	intent, err := extractor.Extract("give me 500")
	require.NoError(t, err)
	assert.Equal(t, 50, intent.RowLimit)

	// out of range ceilings are ignored
	intent, err = NewIntentExtractor().WithMaxRowLimit(MaxRowLimit + 1).Extract("limit 1000")
	require.NoError(t, err)
	assert.Equal(t, 1000, intent.RowLimit)
}
