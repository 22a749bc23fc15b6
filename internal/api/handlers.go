// Package api serves the simulator over HTTP with gin.
package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/internal/simulation"
	"github.com/signalsfoundry/orbital-power-sim/kb"
	"github.com/signalsfoundry/orbital-power-sim/model"
)

// AppInfo is reported by the banner and health endpoints.
type AppInfo struct {
	Name    string
	Version string
}

// Health is the /health payload.
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Handler holds the HTTP handlers' dependencies.
type Handler struct {
	Service *simulation.Service
	Files   *simulation.CSVExporter // nil disables /outputs
	Info    AppInfo
	Log     logging.Logger

	now func() time.Time
}

// NewHandler creates a handler.
func NewHandler(svc *simulation.Service, files *simulation.CSVExporter, info AppInfo, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	return &Handler{Service: svc, Files: files, Info: info, Log: log, now: time.Now}
}

// Root describes the service.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.Info.Name,
		"version": h.Info.Version,
		"health":  "/health",
	})
}

// Health handles health check requests.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, Health{
		Status:    "healthy",
		Version:   h.Info.Version,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// CreateSimulation runs a simulation synchronously. Validation problems
// give 422, a failed run 400, success 201.
func (h *Handler) CreateSimulation(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	req, err := model.DecodeSimulationRequest(body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []simulation.Violation{{Field: "body", Message: err.Error()}}})
		return
	}

	resp, err := h.Service.Run(c.Request.Context(), req)
	if err != nil {
		var verr *simulation.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": verr.Violations})
		case resp != nil:
			c.JSON(http.StatusBadRequest, gin.H{"detail": resp.Message, "simulation_id": resp.SimulationID})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Examples lists canned requests.
func (h *Handler) Examples(c *gin.Context) {
	c.JSON(http.StatusOK, simulation.Examples())
}

// ListSimulations returns recent run records, newest first.
func (h *Handler) ListSimulations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	runs := h.Service.List(limit)
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetSimulation returns one run record.
func (h *Handler) GetSimulation(c *gin.Context) {
	rec, err := h.Service.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, kb.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Simulation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// OutputFile serves an exported file.
func (h *Handler) OutputFile(c *gin.Context) {
	if h.Files == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
		return
	}
	name := c.Param("filename")
	path, err := h.Files.Path(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.FromContext(c.Request.Context(), h.Log).Warn(c.Request.Context(), "output stat failed", logging.Err(err))
		}
		c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
		return
	}
	// mime has no built-in .csv entry on every platform.
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.FileAttachment(path, name)
}
