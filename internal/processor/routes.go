package processor

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/lab-query/internal/errors"
	"github.com/seanankenbruck/lab-query/internal/observability"
)

// Keys the auth middleware stores on authenticated requests
const (
	ctxUserID = "user_id"
	ctxLabID  = "lab_id"
	ctxRole   = "role"
	roleAdmin = "admin"
)

// AuthMiddleware is an interface for authentication middleware
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
}

// SetupRoutes configures HTTP routes with optional authentication
func (qp *QueryProcessor) SetupRoutes(authMiddleware AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(
		observability.RecoveryMiddleware(qp.logger),
		observability.RequestLoggingMiddleware(observability.NewLogger("http")),
		observability.MetricsMiddleware(),
		observability.CORSWithLogging(qp.logger),
	)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "home page")
	})

	r.GET("/health", func(c *gin.Context) {
		if qp.healthChecker == nil {
			c.JSON(http.StatusOK, gin.H{
				"status":  "healthy",
				"service": "lab-query",
			})
			return
		}
		observability.HealthHandler(qp.healthChecker)(c)
	})
	r.GET("/metrics", observability.MetricsHandler(observability.GetGlobalMetrics()))

	api := r.Group("/api")
	if authMiddleware != nil {
		api.Use(authMiddleware.Middleware())
	}
	{
		api.POST("/query", qp.handleQuery)
		api.GET("/all-data", qp.handleAllData)
		api.GET("/data/:labId", qp.handleLabData)

		v1 := api.Group("/v1")
		v1.POST("/query", qp.handleQuery)
		v1.POST("/explain", qp.handleExplain)
		v1.DELETE("/cache", qp.handleInvalidate)
		if qp.history != nil {
			v1.GET("/history", qp.handleHistory)
		}
	}

	return r
}

func (qp *QueryProcessor) handleQuery(c *gin.Context) {
	req, ok := qp.bindQuestion(c)
	if !ok {
		return
	}

	payload, err := qp.ProcessQuery(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (qp *QueryProcessor) handleExplain(c *gin.Context) {
	req, ok := qp.bindQuestion(c)
	if !ok {
		return
	}

	stmt, err := qp.Explain(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stmt)
}

func (qp *QueryProcessor) handleInvalidate(c *gin.Context) {
	req, ok := qp.bindQuestion(c)
	if !ok {
		return
	}

	canonical, err := qp.InvalidateQuestion(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": canonical})
}

func (qp *QueryProcessor) handleHistory(c *gin.Context) {
	raw := c.Query("labId")
	if raw == "" {
		respondError(c, errors.NewMissingRequiredError("labId is required", "labId"))
		return
	}
	labID, err := ParseTenantID(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := authorizeLab(c, labID); err != nil {
		respondError(c, err)
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(c, errors.NewInvalidInputError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := qp.History(c.Request.Context(), labID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history": entries,
		"count":   len(entries),
	})
}

func (qp *QueryProcessor) handleAllData(c *gin.Context) {
	if qp.reports == nil {
		respondError(c, errors.NewDatabaseConnectionError(nil))
		return
	}
	if role, authenticated := c.Get(ctxRole); authenticated && role != roleAdmin {
		respondError(c, errors.NewInsufficientPermissionsError(roleAdmin))
		return
	}

	reports, err := qp.reports.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, errors.NewDatabaseQueryError(err, "listing reports"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}

func (qp *QueryProcessor) handleLabData(c *gin.Context) {
	if qp.reports == nil {
		respondError(c, errors.NewDatabaseConnectionError(nil))
		return
	}

	labID, err := ParseTenantID(c.Param("labId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := authorizeLab(c, labID); err != nil {
		respondError(c, err)
		return
	}

	reports, err := qp.reports.ListByLab(c.Request.Context(), labID)
	if err != nil {
		respondError(c, errors.NewDatabaseQueryError(err, "listing lab reports"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}

// bindQuestion decodes the body, attaches the caller and enforces the lab binding
func (qp *QueryProcessor) bindQuestion(c *gin.Context) (*QueryRequest, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("request body", err.Error()))
		return nil, false
	}
	req.UserID = c.GetString(ctxUserID)

	if !isMissing(req.LabID) {
		if labID, err := ParseTenantID(req.LabID); err == nil {
			if err := authorizeLab(c, labID); err != nil {
				respondError(c, err)
				return nil, false
			}
		}
	}
	return &req, true
}

// authorizeLab rejects a lab other than the caller's own unless the caller is
// an admin. Unauthenticated servers accept every lab.
func authorizeLab(c *gin.Context, labID int64) error {
	value, authenticated := c.Get(ctxLabID)
	if !authenticated {
		return nil
	}
	if c.GetString(ctxRole) == roleAdmin {
		return nil
	}
	allowed, _ := value.(int64)
	if allowed != labID {
		return errors.NewTenantMismatchError(labID, allowed)
	}
	return nil
}

func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), errors.ResponseBody(err))
}
