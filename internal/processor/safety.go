package processor

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	ReasonNotReadQuery   = "not a read query"
	ReasonUnsafeKeyword  = "unsafe keyword"
	ReasonMissingTenant  = "missing tenant predicate"
	ReasonMultiStatement = "multiple statements"
	ReasonDisjunction    = "disjunction can widen tenant scope"
	ReasonForeignTenant  = "lab_id does not match the requesting lab"
	ReasonWrongTable     = "references a table other than FoodReports"
	ReasonSubquery       = "nested select"
	ReasonFunction       = "function call not allowed"
	ReasonUnparseable    = "statement could not be analysed"
)

// generatedFunctions are the only calls generated SQL may make
var generatedFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"round": true, "abs": true, "coalesce": true, "nullif": true,
	"lower": true, "upper": true, "now": true, "date_trunc": true, "extract": true,
	"cast": true, "interval": true,
	// keywords that may be followed by a parenthesis
	"in": true, "and": true, "not": true, "where": true, "as": true, "by": true,
	"between": true, "over": true, "filter": true, "select": true, "then": true,
	"else": true, "when": true, "on": true,
}

// Verdict is the outcome of a safety check
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Verdict { return Verdict{Allowed: true} }

func reject(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }

// SafetyGuard inspects statement text independent of how it was produced
type SafetyGuard struct {
	readPrefix     *regexp.Regexp
	unsafeKeywords *regexp.Regexp
	tenantClause   *regexp.Regexp
	disjunction    *regexp.Regexp

	quotedIdent   *regexp.Regexp
	stringLiteral *regexp.Regexp
	opaque        *regexp.Regexp
	selectWord    *regexp.Regexp
	fromWord      *regexp.Regexp
	whereWord     *regexp.Regexp
	fromClause    *regexp.Regexp
	clauseEnd     *regexp.Regexp
	funcCall      *regexp.Regexp
	tenantOnly    *regexp.Regexp
}

// NewSafetyGuard creates a guard with the standard deny list
func NewSafetyGuard() *SafetyGuard {
	return &SafetyGuard{
		readPrefix:     regexp.MustCompile(`(?i)^\s*select\b`),
		unsafeKeywords: regexp.MustCompile(`(?i)\b(drop|delete|insert|update|alter|truncate)\b`),
		tenantClause:   regexp.MustCompile(`(?i)"?\blab_id"?\s*=\s*(:labId\b|\d+\b)`),
		disjunction:    regexp.MustCompile(`(?i)\b(?:or|union)\b`),

		quotedIdent:   regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"`),
		stringLiteral: regexp.MustCompile(`'(?:[^']|'')*'`),
		opaque:        regexp.MustCompile(`--|/\*|\$`),
		selectWord:    regexp.MustCompile(`(?i)\bselect\b`),
		fromWord:      regexp.MustCompile(`(?i)\bfrom\b`),
		whereWord:     regexp.MustCompile(`(?i)\bwhere\b`),
		fromClause:    regexp.MustCompile(`(?i)^FoodReports(?:\s+(?:as\s+)?[a-z_][a-z0-9_]*)?$`),
		clauseEnd:     regexp.MustCompile(`(?i)\b(?:where|group\s+by|order\s+by|having|limit|offset|fetch|window)\b`),
		funcCall:      regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*\(`),
		tenantOnly:    regexp.MustCompile(`^(?i:lab_id)\s*=\s*(?::labId|\d+)$`),
	}
}

// Check allows only statements that start with SELECT and carry none of the
// mutating keywords as whole words.
func (g *SafetyGuard) Check(statement string) Verdict {
	if !g.readPrefix.MatchString(statement) {
		return reject(ReasonNotReadQuery)
	}
	if g.unsafeKeywords.MatchString(statement) {
		return reject(ReasonUnsafeKeyword)
	}
	return allow()
}

// CheckGenerated applies Check plus the rules generated SQL must satisfy
// before it may run: a single statement over FoodReports alone, no nested
// select, no OR or UNION, only whitelisted functions, and a bare
// lab_id equality as a top-level conjunct of the one WHERE clause.
func (g *SafetyGuard) CheckGenerated(statement string) Verdict {
	if v := g.Check(statement); !v.Allowed {
		return v
	}

	body, ok := g.mask(statement)
	if !ok {
		return reject(ReasonUnparseable)
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), ";")
	if strings.Contains(body, ";") {
		return reject(ReasonMultiStatement)
	}
	if g.disjunction.MatchString(body) {
		return reject(ReasonDisjunction)
	}
	if len(g.selectWord.FindAllStringIndex(body, -1)) != 1 {
		return reject(ReasonSubquery)
	}

	froms := g.fromWord.FindAllStringIndex(body, -1)
	if len(froms) != 1 {
		return reject(ReasonWrongTable)
	}
	rest := body[froms[0][1]:]
	table := rest
	if loc := g.clauseEnd.FindStringIndex(rest); loc != nil {
		table = rest[:loc[0]]
	}
	if !g.fromClause.MatchString(strings.TrimSpace(table)) {
		return reject(ReasonWrongTable)
	}

	for _, m := range g.funcCall.FindAllStringSubmatch(body, -1) {
		if !generatedFunctions[strings.ToLower(m[1])] {
			return reject(ReasonFunction)
		}
	}

	wheres := g.whereWord.FindAllStringIndex(rest, -1)
	if len(wheres) != 1 {
		return reject(ReasonMissingTenant)
	}
	where := rest[wheres[0][1]:]
	if loc := g.clauseEnd.FindStringIndex(where); loc != nil {
		where = where[:loc[0]]
	}
	for _, conjunct := range splitConjuncts(where) {
		if g.tenantOnly.MatchString(conjunct) {
			return allow()
		}
	}
	return reject(ReasonMissingTenant)
}

// mask unquotes plain identifiers and blanks string literals so keywords
// inside them are not seen. It fails on comments, dollar quoting and any
// quote left unbalanced.
func (g *SafetyGuard) mask(statement string) (string, bool) {
	s := g.quotedIdent.ReplaceAllString(statement, "$1")
	s = g.stringLiteral.ReplaceAllString(s, "'?'")
	if strings.ContainsAny(strings.ReplaceAll(s, "'?'", ""), `"'`) {
		return "", false
	}
	if g.opaque.MatchString(s) {
		return "", false
	}
	return s, true
}

// splitConjuncts splits a WHERE body on the ANDs outside parentheses and
// CASE blocks. The AND of a BETWEEN stays inside its conjunct.
func splitConjuncts(where string) []string {
	var (
		parts   []string
		current []string
		depth   int
		between bool
	)
	flush := func() {
		parts = append(parts, strings.Join(current, " "))
		current = nil
	}

	for _, tok := range tokenize(where) {
		switch strings.ToLower(tok) {
		case "(", "case":
			depth++
		case ")", "end":
			depth--
		case "between":
			if depth == 0 {
				between = true
			}
		case "and":
			if depth == 0 {
				if between {
					between = false
				} else {
					flush()
					continue
				}
			}
		}
		current = append(current, tok)
	}
	flush()
	return parts
}

// tokenize separates parentheses from words and collapses whitespace
func tokenize(s string) []string {
	s = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(s)
	return strings.Fields(s)
}

// CheckTenant verifies that every numeric lab_id comparison in a generated
// statement names the requesting lab.
func (g *SafetyGuard) CheckTenant(statement string, labID int64) Verdict {
	want := strconv.FormatInt(labID, 10)
	for _, m := range g.tenantClause.FindAllStringSubmatch(statement, -1) {
		if strings.HasPrefix(m[1], ":") {
			continue
		}
		if strings.TrimLeft(m[1], "0") != strings.TrimLeft(want, "0") {
			return reject(ReasonForeignTenant)
		}
	}
	return allow()
}

// UsesTenantParam reports whether the statement binds the lab id placeholder
func UsesTenantParam(statement string) bool {
	return strings.Contains(statement, ":"+TenantParam)
}
