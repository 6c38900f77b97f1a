package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
	"github.com/jonesrussell/north-cloud/chimera/skills"
)

type skillView struct {
	skill.Contract
	Enabled bool `json:"enabled"`
}

type skillDetail struct {
	skillView
	Documentation string `json:"documentation"`
}

func (r *Router) enabled(name skill.Name) bool {
	return r.deps.Skills != nil && r.deps.Skills.Enabled(name)
}

// listSkills handles GET /api/v1/skills
func (r *Router) listSkills(c *gin.Context) {
	contracts := skill.Contracts()
	views := make([]skillView, 0, len(contracts))
	for _, contract := range contracts {
		views = append(views, skillView{Contract: contract, Enabled: r.enabled(contract.Name)})
	}
	c.JSON(http.StatusOK, gin.H{
		"skills": views,
		"count":  len(views),
	})
}

// getSkill handles GET /api/v1/skills/:name
func (r *Router) getSkill(c *gin.Context) {
	contract, ok := skill.Lookup(skill.Name(c.Param("name")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Skill not found"})
		return
	}

	doc, err := skills.Readme(contract.Readme)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read skill documentation"})
		return
	}

	c.JSON(http.StatusOK, skillDetail{
		skillView:     skillView{Contract: contract, Enabled: r.enabled(contract.Name)},
		Documentation: doc,
	})
}

// invokeSkill handles POST /api/v1/skills/:name
func (r *Router) invokeSkill(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		serr := skill.BadRequest("request body must be at most %d bytes", maxBodyBytes)
		c.JSON(serr.Code.Status(), serr)
		return
	}

	out, err := r.deps.Skills.Invoke(c.Request.Context(), skill.Name(c.Param("name")), body)
	if err != nil {
		if errors.Is(err, skill.ErrUnknownSkill) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Skill not found"})
			return
		}
		if serr, ok := skill.AsError(err); ok {
			c.JSON(serr.Code.Status(), serr)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invoke skill"})
		return
	}

	c.JSON(http.StatusOK, out)
}
