package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seanankenbruck/lab-query/internal/cache"
	"github.com/seanankenbruck/lab-query/internal/database"
	"github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/history"
	"github.com/seanankenbruck/lab-query/internal/llm"
	"github.com/seanankenbruck/lab-query/internal/observability"
)

// Question modes
const (
	ModeRules = "rules"
	ModeLLM   = "llm"
)

// DefaultMaxPromptLength bounds the question text
const DefaultMaxPromptLength = 500

// QueryRequest is one natural language question scoped to a lab
type QueryRequest struct {
	LabID  interface{} `json:"labId"`
	Prompt string      `json:"prompt"`
	Mode   string      `json:"mode,omitempty"`
	UserID string      `json:"-"`
}

// Executor runs a parameterized statement
type Executor interface {
	Execute(ctx context.Context, template string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// ReportSource lists raw reports for the data endpoints
type ReportSource interface {
	ListAll(ctx context.Context) ([]database.FoodReport, error)
	ListByLab(ctx context.Context, labID int64) ([]database.FoodReport, error)
}

// ProcessorConfig holds configuration for the query processor
type ProcessorConfig struct {
	CacheTTL        time.Duration
	MaxPromptLength int
	MaxRowLimit     int
}

// QueryProcessor answers questions: compile, guard, cache, execute, summarize
type QueryProcessor struct {
	executor          Executor
	cache             *cache.ResultCache
	llmClient         llm.Client
	history           history.Store
	reports           ReportSource
	extractor         *IntentExtractor
	compiler          *StatementCompiler
	guard             *SafetyGuard
	resultProcessor   *ResultProcessor
	metadataGenerator *MetadataGenerator
	logger            *observability.Logger
	healthChecker     *observability.HealthChecker
	config            ProcessorConfig
}

// NewQueryProcessor creates a new query processor instance
func NewQueryProcessor(executor Executor, resultCache *cache.ResultCache, config ProcessorConfig) *QueryProcessor {
	if config.MaxPromptLength <= 0 {
		config.MaxPromptLength = DefaultMaxPromptLength
	}
	if config.MaxRowLimit <= 0 || config.MaxRowLimit > MaxRowLimit {
		config.MaxRowLimit = MaxRowLimit
	}
	if resultCache == nil {
		resultCache = cache.NewResultCache(cache.Options{DefaultTTL: config.CacheTTL})
	}

	return &QueryProcessor{
		executor:          executor,
		cache:             resultCache,
		extractor:         NewIntentExtractor().WithMaxRowLimit(config.MaxRowLimit),
		compiler:          NewStatementCompiler().WithMaxRowLimit(config.MaxRowLimit),
		guard:             NewSafetyGuard(),
		resultProcessor:   NewResultProcessor(),
		metadataGenerator: NewMetadataGenerator(),
		logger:            observability.NewLogger("query-processor"),
		config:            config,
	}
}

// SetLLMClient enables the llm mode
func (qp *QueryProcessor) SetLLMClient(client llm.Client) {
	qp.llmClient = client
}

// SetHistoryStore enables the audit trail
func (qp *QueryProcessor) SetHistoryStore(store history.Store) {
	qp.history = store
}

// SetReportSource enables the raw data endpoints
func (qp *QueryProcessor) SetReportSource(reports ReportSource) {
	qp.reports = reports
}

// SetHealthChecker sets the health checker for the processor
func (qp *QueryProcessor) SetHealthChecker(healthChecker *observability.HealthChecker) {
	qp.healthChecker = healthChecker
}

// Cache returns the result cache
func (qp *QueryProcessor) Cache() *cache.ResultCache {
	return qp.cache
}

// ProcessQuery compiles the question, rejects anything the safety guard
// refuses, then answers from the cache or by executing the statement.
func (qp *QueryProcessor) ProcessQuery(ctx context.Context, req *QueryRequest) (*Payload, error) {
	start := time.Now()
	mode := normalizeMode(req.Mode)

	var payload *Payload
	var processingErr error

	defer func() {
		duration := time.Since(start)
		success := processingErr == nil
		cached := payload != nil && payload.Cached
		observability.RecordQueryMetrics(duration, mode, success, cached, errorType(processingErr))

		if processingErr != nil {
			qp.logger.Error(ctx, "Question processing failed", processingErr, map[string]interface{}{
				"prompt":      req.Prompt,
				"mode":        mode,
				"duration_ms": duration.Milliseconds(),
			})
			return
		}
		qp.logger.Info(ctx, "Question answered", map[string]interface{}{
			"mode":        mode,
			"statement":   payload.Statement,
			"rows":        len(payload.AnswerTable),
			"cached":      cached,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	stmt, err := qp.prepare(ctx, req, mode)
	if err != nil {
		processingErr = err
		return nil, err
	}

	key := cache.Key(stmt.Canonical)

	var hit Payload
	if qp.cache.GetJSON(ctx, key, &hit) {
		hit.Cached = true
		hit.ProcessingTimeMs = time.Since(start).Milliseconds()
		payload = &hit
		qp.recordHistory(ctx, req, mode, payload, time.Since(start))
		return payload, nil
	}

	rows, err := qp.executor.Execute(ctx, stmt.Template, stmt.Params)
	if err != nil {
		processingErr = errors.NewExecutionError(err)
		return nil, processingErr
	}

	payload = qp.buildPayload(stmt, mode, rows)
	payload.ProcessingTimeMs = time.Since(start).Milliseconds()

	qp.cache.SetJSON(ctx, key, payload, qp.config.CacheTTL)
	qp.recordHistory(ctx, req, mode, payload, time.Since(start))

	return payload, nil
}

// Explain compiles and guards a question without executing it
func (qp *QueryProcessor) Explain(ctx context.Context, req *QueryRequest) (*CompiledStatement, error) {
	return qp.prepare(ctx, req, normalizeMode(req.Mode))
}

// InvalidateQuestion drops the cached result for a rule-based question and
// returns the canonical statement whose entry was removed.
func (qp *QueryProcessor) InvalidateQuestion(ctx context.Context, req *QueryRequest) (string, error) {
	if normalizeMode(req.Mode) != ModeRules {
		return "", errors.NewInvalidInputError("mode", "only rule-based questions have a stable cache key")
	}

	stmt, err := qp.prepare(ctx, req, ModeRules)
	if err != nil {
		return "", err
	}

	qp.cache.Invalidate(ctx, cache.Key(stmt.Canonical))
	qp.logger.Info(ctx, "Invalidated cached result", map[string]interface{}{
		"statement": stmt.Canonical,
	})
	return stmt.Canonical, nil
}

// History returns the lab's recent answered questions
func (qp *QueryProcessor) History(ctx context.Context, labID int64, limit int) ([]history.Entry, error) {
	if qp.history == nil {
		return []history.Entry{}, nil
	}
	entries, err := qp.history.Recent(ctx, labID, limit)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "reading query history")
	}
	return entries, nil
}

// prepare validates the request and produces a guarded statement
func (qp *QueryProcessor) prepare(ctx context.Context, req *QueryRequest, mode string) (*CompiledStatement, error) {
	if err := qp.validateRequest(req, mode); err != nil {
		return nil, err
	}

	var stmt *CompiledStatement
	var err error
	switch mode {
	case ModeLLM:
		stmt, err = qp.compileWithLLM(ctx, req)
	default:
		stmt, err = qp.compileWithRules(req)
	}
	if err != nil {
		return nil, err
	}

	if verdict := qp.guard.Check(stmt.Template); !verdict.Allowed {
		observability.RecordSafetyRejection(mode, verdict.Reason)
		return nil, errors.NewUnsafeStatementError(verdict.Reason)
	}
	return stmt, nil
}

func (qp *QueryProcessor) validateRequest(req *QueryRequest, mode string) error {
	if isMissing(req.LabID) || req.Prompt == "" {
		return errors.NewMissingRequiredError("labId and prompt are required", "labId", "prompt")
	}
	if len(req.Prompt) > qp.config.MaxPromptLength {
		return errors.NewInvalidInputError("prompt", fmt.Sprintf("must be at most %d characters", qp.config.MaxPromptLength))
	}
	if mode != ModeRules && mode != ModeLLM {
		return errors.NewInvalidInputError("mode", "must be rules or llm")
	}
	return nil
}

func (qp *QueryProcessor) compileWithRules(req *QueryRequest) (*CompiledStatement, error) {
	intent, err := qp.extractor.Extract(req.Prompt)
	if err != nil {
		return nil, err
	}
	return qp.compiler.Compile(req.LabID, intent)
}

// compileWithLLM asks the model for a statement and holds it to the rules
// generated SQL must satisfy before the lab id is bound.
func (qp *QueryProcessor) compileWithLLM(ctx context.Context, req *QueryRequest) (*CompiledStatement, error) {
	if qp.llmClient == nil {
		return nil, errors.NewInvalidInputError("mode", "llm mode is not configured on this server")
	}

	tenantID, err := ParseTenantID(req.LabID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.NewEmptyPromptError()
	}

	resp, err := qp.llmClient.GenerateSQL(ctx, llm.BuildSQLPrompt(req.Prompt))
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeRateLimited) {
			return nil, err
		}
		return nil, errors.NewQueryGenerationError(err)
	}

	statement := strings.TrimSpace(resp.SQL)
	if statement == "" {
		return nil, errors.NewQueryGenerationError(fmt.Errorf("model returned no SQL"))
	}

	verdict := qp.guard.CheckGenerated(statement)
	if verdict.Allowed {
		verdict = qp.guard.CheckTenant(statement, tenantID)
	}
	if !verdict.Allowed {
		observability.RecordSafetyRejection(ModeLLM, verdict.Reason)
		qp.logger.Warn(ctx, "Rejected generated SQL", map[string]interface{}{
			"sql":    statement,
			"reason": verdict.Reason,
		})
		return nil, errors.NewUnsafeStatementError(verdict.Reason)
	}

	params := map[string]interface{}{}
	if UsesTenantParam(statement) {
		params[TenantParam] = tenantID
	}

	return &CompiledStatement{
		Template:  statement,
		Params:    params,
		Canonical: EmbedParams(statement, params),
		Summary:   fmt.Sprintf("Generated query for lab %d", tenantID),
		TenantID:  tenantID,
	}, nil
}

func (qp *QueryProcessor) buildPayload(stmt *CompiledStatement, mode string, rows []map[string]interface{}) *Payload {
	payload := &Payload{
		Statement:      stmt.Canonical,
		AnswerText:     qp.resultProcessor.AnswerText(stmt.Intent, rows),
		AnswerTable:    qp.resultProcessor.AnswerTable(rows),
		Mode:           mode,
		Summary:        stmt.Summary,
		Intent:         stmt.Intent,
		ResultMetadata: qp.metadataGenerator.GenerateMetadata(stmt.Intent, rows),
	}
	if stmt.Intent == nil || stmt.Intent.Kind == KindSelect {
		payload.Statistics = qp.resultProcessor.ComputeStatistics(rows)
	}
	return payload
}

func (qp *QueryProcessor) recordHistory(ctx context.Context, req *QueryRequest, mode string, payload *Payload, elapsed time.Duration) {
	if qp.history == nil {
		return
	}

	labID, err := ParseTenantID(req.LabID)
	if err != nil {
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = observability.GetUserID(ctx)
	}

	entry := history.Entry{
		LabID:      labID,
		UserID:     userID,
		Prompt:     req.Prompt,
		Mode:       mode,
		Statement:  payload.Statement,
		Summary:    payload.Summary,
		RowCount:   len(payload.AnswerTable),
		Cached:     payload.Cached,
		DurationMs: elapsed.Milliseconds(),
	}
	if err := qp.history.Record(ctx, entry); err != nil {
		qp.logger.Warn(ctx, "Failed to record query history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func normalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return ModeRules
	}
	return mode
}

// isMissing treats an absent labId, null and the empty string as missing
func isMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	if enhanced, ok := errors.As(err); ok {
		return strings.ToLower(string(enhanced.Code))
	}
	return "internal"
}
