package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, p Provider) {
	router.GET("/", handleIndex(p))
	router.GET("/api/state", handleState(p))
	router.GET("/api/events", handleSSE(p))
}

func handleIndex(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := p.State(c.Request.Context())
		if err != nil {
			c.HTML(http.StatusInternalServerError, "layout.html", gin.H{
				"error": err.Error(),
			})
			return
		}
		c.HTML(http.StatusOK, "layout.html", gin.H{
			"state": state,
		})
	}
}

func handleState(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := p.State(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}
