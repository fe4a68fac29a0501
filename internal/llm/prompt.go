package llm

import (
	"fmt"
	"regexp"
	"strings"
)

const schemaDescription = `Table: "FoodReports"
Columns: lab_id INTEGER, protein DOUBLE PRECISION, fat DOUBLE PRECISION, weight DOUBLE PRECISION, expiry DOUBLE PRECISION, created_at TIMESTAMPTZ`

// BuildSQLPrompt returns the instruction sent to the model for one question.
// The lab is referenced through the :labId placeholder so the tenant value is
// bound by the executor, never written by the model.
func BuildSQLPrompt(question string) string {
	var sb strings.Builder

	sb.WriteString("You convert natural language to EXACT SQL for PostgreSQL.\n\n")
	sb.WriteString("DATABASE:\n")
	sb.WriteString(schemaDescription)
	sb.WriteString("\n\nSTRICT RULES:\n")
	sb.WriteString("- ALWAYS include: lab_id = :labId\n")
	sb.WriteString("- Write a single SELECT statement over \"FoodReports\" only.\n")
	sb.WriteString("- Do NOT use OR or UNION.\n")
	sb.WriteString("- Output MUST be ONLY SQL. No Markdown. No explanation.\n")
	sb.WriteString("- Do NOT guess missing columns.\n")
	sb.WriteString("- Do NOT rename columns.\n\n")
	fmt.Fprintf(&sb, "User request: %s\n\n", strings.TrimSpace(question))
	sb.WriteString("Return only the SQL query:")

	return sb.String()
}

var tableNamePattern = regexp.MustCompile(`(?i)"?\bfoodreports\b"?`)

// ExtractSQL pulls the statement out of a model reply. A ```sql fenced block
// wins, then any fenced block that starts like SQL, then the whole reply with
// stray fences removed. The table name is forced to its quoted form and a
// trailing semicolon is dropped.
func ExtractSQL(text string) string {
	sql := extractFromCodeBlocks(text)
	if sql == "" {
		sql = strings.ReplaceAll(text, "```sql", "")
		sql = strings.ReplaceAll(sql, "```SQL", "")
		sql = strings.ReplaceAll(sql, "```", "")
	}
	sql = tableNamePattern.ReplaceAllString(sql, `"FoodReports"`)
	return cleanSQL(sql)
}

func extractFromCodeBlocks(text string) string {
	lower := strings.ToLower(text)
	if start := strings.Index(lower, "```sql"); start != -1 {
		start += len("```sql")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return text[start : start+end]
		}
	}

	if start := strings.Index(text, "```"); start != -1 {
		start += 3
		if end := strings.Index(text[start:], "```"); end != -1 {
			content := text[start : start+end]
			if looksLikeSQL(content) {
				return content
			}
		}
	}
	return ""
}

func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}
	return sql
}

// explanationOutside returns the reply text that is not inside a fenced block
func explanationOutside(text string) string {
	result := text
	for {
		start := strings.Index(result, "```")
		if start == -1 {
			break
		}
		end := strings.Index(result[start+3:], "```")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+3+end+3:]
	}
	result = strings.TrimSpace(result)
	if len(result) > 500 {
		result = result[:500]
	}
	return result
}
