package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jilio/laco"
	"github.com/jilio/laco/devtools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "laco-monitor"

// newRouter wires the monitor's HTTP routes.
func newRouter(monitor *devtools.Server, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName))

	router.GET("/ws", gin.WrapH(monitor))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sessions := router.Group("/sessions")
	sessions.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Sessions())
	})
	sessions.GET("/:id/timeline", func(c *gin.Context) {
		entries, err := monitor.Timeline(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	})
	sessions.POST("/:id/jump/:index", func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
			return
		}

		jump := monitor.Jump
		kind := laco.JumpToAction
		if c.Query("kind") == "state" {
			jump = monitor.JumpToState
			kind = laco.JumpToState
		}
		if err := jump(c.Param("id"), index); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"type": kind, "index": index})
	})

	return router
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, devtools.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, devtools.ErrIndexOutOfRange):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
