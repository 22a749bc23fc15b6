package api

import (
	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/internal/observability"
)

// SetupRoutes registers every endpoint on r.
func SetupRoutes(r *gin.Engine, h *Handler) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	v1.POST("/simulations", h.CreateSimulation)
	v1.GET("/simulations", h.ListSimulations)
	v1.GET("/simulations/examples", h.Examples)
	v1.GET("/simulations/:id", h.GetSimulation)

	r.GET("/outputs/:filename", h.OutputFile)
}

// NewRouter builds a gin engine with recovery, permissive CORS, request
// logging and, when metrics is non-nil, Prometheus instrumentation.
func NewRouter(h *Handler, log logging.Logger, metrics *observability.Collector) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS())
	r.Use(RequestLogger(log))
	if metrics != nil {
		r.Use(metrics.GinMiddleware())
	}
	SetupRoutes(r, h)
	return r
}
