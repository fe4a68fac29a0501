package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// NoDataMessage is the answer text for an empty result
const NoDataMessage = "No matching data found."

var aggregateDisplayNames = map[AggregateFunc]string{
	AggCount: "Count",
	AggSum:   "Sum",
	AggAvg:   "Average",
	AggMin:   "Minimum",
	AggMax:   "Maximum",
}

// Payload is the response returned for a question and the value stored in
// the result cache.
type Payload struct {
	Statement        string                   `json:"statement"`
	AnswerText       string                   `json:"answerText"`
	AnswerTable      []map[string]interface{} `json:"answerTable"`
	Cached           bool                     `json:"cached"`
	Mode             string                   `json:"mode,omitempty"`
	Summary          string                   `json:"summary,omitempty"`
	Intent           *Intent                  `json:"intent,omitempty"`
	Statistics       map[string]*ColumnStats  `json:"statistics,omitempty"`
	ResultMetadata   *ResultMetadata          `json:"result_metadata,omitempty"`
	ProcessingTimeMs int64                    `json:"processing_time_ms"`
}

// ColumnStats summarizes one numeric column of a Select result
type ColumnStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// ResultMetadata provides presentation hints for a result
type ResultMetadata struct {
	VisualizationType string   `json:"visualization_type"` // "stat", "table", "empty"
	RowCount          int      `json:"row_count"`
	Columns           []string `json:"columns,omitempty"`
	Truncated         bool     `json:"truncated"`
	Recommendation    string   `json:"recommendation"`
	NextSteps         []string `json:"next_steps,omitempty"`
}

// ResultProcessor turns executed rows into answer text and statistics
type ResultProcessor struct{}

// NewResultProcessor creates a result processor
func NewResultProcessor() *ResultProcessor {
	return &ResultProcessor{}
}

// AnswerText applies the summary rules: empty rows give the no-data message,
// aggregates report the first row's value and selects report the row count.
func (rp *ResultProcessor) AnswerText(intent *Intent, rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return NoDataMessage
	}

	if intent != nil && intent.Kind == KindAggregate {
		value, ok := aggregateValue(rows[0])
		if !ok {
			return NoDataMessage
		}
		name, found := aggregateDisplayNames[intent.Aggregate]
		if !found {
			name = string(intent.Aggregate)
		}
		return fmt.Sprintf("%s: %s", name, value)
	}

	return fmt.Sprintf("Returned %d rows.", len(rows))
}

// AnswerTable returns rows, or nil when there are none so the payload encodes null
func (rp *ResultProcessor) AnswerTable(rows []map[string]interface{}) []map[string]interface{} {
	if len(rows) == 0 {
		return nil
	}
	return rows
}

// ComputeStatistics returns count/min/max/avg for every column whose values are numeric
func (rp *ResultProcessor) ComputeStatistics(rows []map[string]interface{}) map[string]*ColumnStats {
	if len(rows) == 0 {
		return nil
	}

	stats := make(map[string]*ColumnStats)
	sums := make(map[string]float64)

	for _, row := range rows {
		for col, raw := range row {
			v, ok := toFloat(raw)
			if !ok {
				continue
			}
			s, exists := stats[col]
			if !exists {
				s = &ColumnStats{Min: v, Max: v}
				stats[col] = s
			}
			s.Count++
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
			sums[col] += v
		}
	}

	for col, s := range stats {
		s.Avg = sums[col] / float64(s.Count)
	}
	if len(stats) == 0 {
		return nil
	}
	return stats
}

// aggregateValue extracts and formats the aggregate value of a row. The
// executor aliases it as "value"; any single-column row is also accepted.
func aggregateValue(row map[string]interface{}) (string, bool) {
	raw, ok := row["value"]
	if !ok {
		if len(row) != 1 {
			return "", false
		}
		for _, v := range row {
			raw = v
		}
	}
	if raw == nil {
		return "", false
	}
	if f, ok := toFloat(raw); ok {
		return FormatNumber(f), true
	}
	return fmt.Sprint(raw), true
}

// FormatNumber renders a number in its shortest decimal form
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case []byte:
		return parseNumeric(string(t))
	case string:
		return parseNumeric(t)
	default:
		return 0, false
	}
}

func parseNumeric(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// sortedColumns lists the keys of a row in a stable order
func sortedColumns(row map[string]interface{}) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
