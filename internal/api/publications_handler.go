package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/jwt"
)

// claimsSubject returns the token subject when the request was authenticated.
func claimsSubject(c *gin.Context) (string, bool) {
	claims, ok := jwt.GetClaims(c)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// getPublication handles GET /api/v1/publications/:id
func (r *Router) getPublication(c *gin.Context) {
	pub, err := r.deps.Publications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleRepositoryError(c, err, "publication", "get")
		return
	}
	c.JSON(http.StatusOK, pub)
}

// outboxStats handles GET /api/v1/publications/stats
func (r *Router) outboxStats(c *gin.Context) {
	stats, err := r.deps.Outbox.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get outbox stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}
