package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/course-advisor-go/internal/advisor"
	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/sentry"
)

// Listing limits.
const (
	defaultCourseLimit = 20
	maxCourseLimit     = 100
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// readinessCheckTimeout bounds the database probes behind /readyz.
const readinessCheckTimeout = 5 * time.Second

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	if a.readinessState != nil && !a.readinessState.IsReady() {
		status := a.readinessState.Status()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": status.Reason,
			"progress": gin.H{
				"elapsed_seconds": status.ElapsedSeconds,
				"timeout_seconds": status.TimeoutSeconds,
			},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessCheckTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}
	if err := a.db.Ready(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: schema missing")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database schema missing",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"data":     a.getDataStats(ctx),
		"features": a.getFeatures(),
	})
}

func (a *Application) getDataStats(ctx context.Context) map[string]int {
	stats := make(map[string]int)

	if count, err := a.db.CountCourses(ctx); err == nil {
		stats["courses"] = count
	} else {
		a.logger.WithError(err).Warn("Failed to count courses in data stats")
	}
	if count, err := a.db.CountCoursesMissingEmbedding(ctx); err == nil {
		stats["courses_missing_embedding"] = count
	} else {
		a.logger.WithError(err).Warn("Failed to count missing embeddings in data stats")
	}
	if count, err := a.db.CountStudents(ctx); err == nil {
		stats["students"] = count
	} else {
		a.logger.WithError(err).Warn("Failed to count students in data stats")
	}
	if a.advisor != nil {
		stats["active_sessions"] = a.advisor.Registry().Len()
	}

	return stats
}

func (a *Application) getFeatures() map[string]bool {
	return map[string]bool{
		"llm":            a.generator != nil,
		"embeddings":     a.embedder != nil && a.embedder.IsConfigured(),
		"catalog_search": a.catalog != nil && a.catalog.Size() > 0,
		"snapshots":      a.snapshots != nil,
	}
}

// handleChat runs one advisor turn.
func (a *Application) handleChat(c *gin.Context) {
	var req advisor.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if a.userLimiter != nil && !a.userLimiter.Allow(userID) {
		c.Header("Retry-After", "5")
		a.writeError(c, apperrors.ErrRateLimitExceeded)
		return
	}

	result, err := a.advisor.Chat(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *Application) handleSessions(c *gin.Context) {
	sessions, err := a.advisor.Sessions(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *Application) handleMessages(c *gin.Context) {
	messages, err := a.advisor.Messages(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (a *Application) handleListCourses(c *gin.Context) {
	limit, err := queryLimit(c, defaultCourseLimit, maxCourseLimit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	courses, err := a.db.ListCourses(c.Request.Context(), limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (a *Application) handleSearchCourses(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		a.writeError(c, apperrors.NewValidationError("q", "must not be empty"))
		return
	}
	limit, err := queryLimit(c, defaultSearchLimit, maxSearchLimit)
	if err != nil {
		a.writeError(c, err)
		return
	}

	hits, err := a.catalog.Search(c.Request.Context(), query, limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": hits})
}

func (a *Application) handleTrends(c *gin.Context) {
	courseID := c.Param("course_id")
	trends, err := a.db.GetCourseTrends(c.Request.Context(), courseID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if len(trends) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trends for course " + courseID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": courseID, "trends": trends})
}

// queryLimit parses ?limit=, applying def when absent and capping at limitMax.
func queryLimit(c *gin.Context, def, limitMax int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.NewValidationError("limit", "must be a positive integer")
	}
	return min(n, limitMax), nil
}

// writeError maps an error to an HTTP status. Unexpected errors are logged
// and reported to Sentry.
func (a *Application) writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	case errors.Is(err, context.Canceled):
		// The client is gone; nobody reads this.
		c.Status(http.StatusServiceUnavailable)
	default:
		a.logger.WithError(err).WithField("http_path", c.FullPath()).Error("Request failed")
		sentry.CaptureExceptionWithContext(ctx, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
