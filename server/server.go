// Package server exposes harvested artifacts over HTTP so a downstream
// collector can pull them without filesystem access to the harvest host.
package server

import (
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"poitharvest/config"
	"poitharvest/store"
)

// idPattern matches normalized record identifiers. Anything else is
// rejected before it reaches the filesystem.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NewRouter creates a configured Gin engine with all routes.
//
// Health endpoint comes first so monitoring probes always work even when
// the output directory is missing.
func NewRouter(cfg config.ServerConfig, outputRoot string, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", health(startTime))
	r.GET("/list", list(outputRoot))
	r.GET("/file/:date/:id", file(outputRoot))

	return r
}

func health(startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"uptime": time.Since(startTime).Round(time.Second).String(),
		})
	}
}

// list reports the record identifiers with a stored artifact for one
// harvest date. Dates default to today.
func list(outputRoot string) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
		if !datePattern.MatchString(date) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		st, exists := store.OpenRead(outputRoot, date)
		ids := []string{}
		if exists {
			listed, err := st.ListScraped()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ids = append(ids, listed...)
		}

		c.JSON(http.StatusOK, gin.H{
			"date":  date,
			"count": len(ids),
			"items": ids,
		})
	}
}

// file streams one stored artifact as plain text.
func file(outputRoot string) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Param("date")
		id := c.Param("id")
		if !datePattern.MatchString(date) || !idPattern.MatchString(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date or id"})
			return
		}

		st, exists := store.OpenRead(outputRoot, date)
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "no artifacts for " + date})
			return
		}

		path := st.ArtifactPath(id)
		if _, err := os.Stat(path); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no artifact for " + id})
			return
		}
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.File(path)
	}
}
