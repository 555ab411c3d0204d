package v1

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/dataset"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
	"github.com/portillolaupa-ui/ucc-supervision/internal/metrics"
	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// Handler API handler
type Handler struct {
	cfg     *config.AppConfig
	forms   []config.FormSettings
	orch    *orchestrator.Orchestrator
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	tables  *dataset.Cache
	now     func() time.Time
}

// Deps handler dependencies; Store and Metrics are optional
type Deps struct {
	Config       *config.AppConfig
	Forms        []config.FormSettings
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewHandler creates the API handler
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		cfg:     d.Config,
		forms:   d.Forms,
		orch:    d.Orchestrator,
		store:   d.Store,
		metrics: d.Metrics,
		logger:  logger,
		tables:  dataset.NewCache(),
		now:     time.Now,
	}
}

// RegisterRoutes registers the API routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// status
	router.GET("/status", h.GetStatus)
	router.GET("/forms", h.ListForms)

	// datasets
	router.GET("/datasets/:form", h.GetDataset)
	router.GET("/datasets/:form/download", h.DownloadDataset)
	router.GET("/datasets/:form/deadlines", h.GetDeadlines)

	// uploads
	admin := AdminToken(h.cfg.Server.AdminToken)
	router.POST("/uploads", admin, h.Upload)
	router.GET("/uploads", h.ListUploads)

	// runs
	router.POST("/runs", admin, h.StartRun)
	router.GET("/runs", h.ListRuns)
	router.GET("/runs/:id", h.GetRun)
	router.GET("/periods", h.ListPeriods)
}

// findForm resolves the :form path parameter, writing a 404 when unknown
func (h *Handler) findForm(c *gin.Context) (config.FormSettings, bool) {
	form, err := config.FindForm(h.forms, c.Param("form"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "formulario no encontrado: " + c.Param("form")})
		return config.FormSettings{}, false
	}
	return form, true
}

func (h *Handler) datasetPath(form config.FormSettings) string {
	return filepath.Join(h.cfg.ProcessedDir(), form.Output.File)
}
