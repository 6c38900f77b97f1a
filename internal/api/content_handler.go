package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// handleRepositoryError handles common repository errors
func handleRepositoryError(c *gin.Context, err error, entityType, operation string) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": entityType + " not found",
		})
		return
	}
	if errors.Is(err, domain.ErrNotPending) {
		c.JSON(http.StatusConflict, gin.H{
			"error": entityType + " was already evaluated",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to " + operation + " " + entityType,
	})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": name + " must be a non-negative integer",
		})
		return 0, false
	}
	return n, true
}

// listContent handles GET /api/v1/content
func (r *Router) listContent(c *gin.Context) {
	filter := domain.DraftFilter{
		AgentID: c.Query("agent_id"),
		Status:  domain.DraftStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "status must be pending_evaluation, approved or rejected",
		})
		return
	}

	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	filter.Limit = min(max(limit, 1), maxListLimit)
	filter.Offset = offset

	drafts, err := r.deps.Content.List(c.Request.Context(), filter)
	if err != nil {
		handleRepositoryError(c, err, "content", "list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": drafts,
		"count":   len(drafts),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// getContent handles GET /api/v1/content/:id
func (r *Router) getContent(c *gin.Context) {
	draft, err := r.deps.Content.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleRepositoryError(c, err, "content", "get")
		return
	}
	c.JSON(http.StatusOK, draft)
}

// evaluateContent handles POST /api/v1/content/:id/evaluation
func (r *Router) evaluateContent(c *gin.Context) {
	var eval domain.Evaluation
	if err := c.ShouldBindJSON(&eval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}
	if claims, ok := claimsSubject(c); ok && eval.Reviewer == "" {
		eval.Reviewer = claims
	}

	draft, err := r.deps.Content.Evaluate(c.Request.Context(), c.Param("id"), eval)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEvaluation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		handleRepositoryError(c, err, "content", "evaluate")
		return
	}
	c.JSON(http.StatusOK, draft)
}
