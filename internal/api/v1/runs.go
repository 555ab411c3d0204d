package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// RunResponse outcome of a run started through the API
type RunResponse struct {
	Summary *orchestrator.Summary `json:"summary"`
	OK      int                   `json:"ok"`
	Total   int                   `json:"total"`
}

// StartRun runs every enabled form, or only ?form=<id>, and waits for the result
// POST /api/runs
func (h *Handler) StartRun(c *gin.Context) {
	var (
		sum *orchestrator.Summary
		err error
	)
	if form := c.Query("form"); form != "" {
		sum, err = h.orch.RunStep(c.Request.Context(), orchestrator.TriggerAPI, form, nil)
	} else {
		sum, err = h.orch.Run(c.Request.Context(), orchestrator.TriggerAPI, nil)
	}
	if err == nil {
		h.tables.Clear()
	}

	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "hay un procesamiento en curso"})
		return
	case errors.Is(err, config.ErrUnknownForm):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, RunResponse{Summary: sum, OK: sum.OK(), Total: sum.Total()})
}

// ListRuns run history, newest first
// GET /api/runs
func (h *Handler) ListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []store.Run{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun one run with its steps and file results
// GET /api/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "historial no disponible"})
		return
	}
	run, err := h.store.GetRun(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ejecución no encontrada"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	files, err := h.store.ListFiles(run.ID, c.Query("form"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if files == nil {
		files = []store.FileRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "files": files})
}

// ListPeriods year/month periods with processed files, for the dashboard filters
// GET /api/periods
func (h *Handler) ListPeriods(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"periods": []store.PeriodStat{}})
		return
	}
	periods, err := h.store.ListPeriods(c.Query("form"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if periods == nil {
		periods = []store.PeriodStat{}
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}
