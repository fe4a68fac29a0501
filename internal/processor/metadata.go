package processor

import "fmt"

// MetadataGenerator generates presentation hints and follow-up suggestions for results
type MetadataGenerator struct{}

// NewMetadataGenerator creates a new metadata generator
func NewMetadataGenerator() *MetadataGenerator {
	return &MetadataGenerator{}
}

// GenerateMetadata creates metadata with visualization hints and next steps
func (mg *MetadataGenerator) GenerateMetadata(intent *Intent, rows []map[string]interface{}) *ResultMetadata {
	metadata := &ResultMetadata{
		VisualizationType: mg.determineVisualizationType(intent, rows),
		RowCount:          len(rows),
		NextSteps:         []string{},
	}

	switch metadata.VisualizationType {
	case "empty":
		metadata.Recommendation = "No reports matched this question"
		metadata.NextSteps = []string{
			"Check the lab id is correct",
			"Relax numeric filters or widen the date window",
		}
		return metadata

	case "stat":
		metadata.Recommendation = "This question returns a single value, best shown as a stat"
		if intent.DateWindow == nil {
			metadata.NextSteps = append(metadata.NextSteps, "Add 'in the last 30 days' to see recent reports only")
		}

	case "table":
		metadata.Recommendation = "This question returns report rows, best viewed as a table"
		metadata.Columns = sortedColumns(rows[0])
		if intent != nil && len(intent.Filters) == 0 {
			metadata.NextSteps = append(metadata.NextSteps, "Filter rows, for example 'protein greater than 10'")
		}
	}

	if intent != nil && intent.Kind == KindSelect && intent.RowLimit > 0 && len(rows) >= intent.RowLimit {
		metadata.Truncated = true
		metadata.NextSteps = append(metadata.NextSteps,
			fmt.Sprintf("Results were capped at %d rows, ask for more with 'limit N'", intent.RowLimit))
	}

	return metadata
}

// determineVisualizationType picks the display for a result
func (mg *MetadataGenerator) determineVisualizationType(intent *Intent, rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return "empty"
	}
	if intent != nil && intent.Kind == KindAggregate {
		if _, ok := aggregateValue(rows[0]); !ok {
			return "empty"
		}
		return "stat"
	}
	return "table"
}
