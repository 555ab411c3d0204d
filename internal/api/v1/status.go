package v1

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// FormStatus dataset state of one form
type FormStatus struct {
	ID          string     `json:"id"`
	Tag         string     `json:"tag"`
	Title       string     `json:"title"`
	Kind        string     `json:"kind"`
	Output      string     `json:"output"`
	DatasetRows int        `json:"datasetRows"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// StatusResponse system status
type StatusResponse struct {
	Initialized bool         `json:"initialized"` // at least one dataset has rows
	RawDir      string       `json:"rawDir"`
	Forms       []FormStatus `json:"forms"`
	LastRun     *store.Run   `json:"lastRun,omitempty"`
}

// GetStatus configured forms, dataset sizes and the last run
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		RawDir: h.cfg.RawDir(),
		Forms:  make([]FormStatus, 0, len(h.forms)),
	}

	for _, f := range h.forms {
		fs := FormStatus{
			ID:     f.ID,
			Tag:    f.Tag,
			Title:  f.Title,
			Kind:   string(f.Kind),
			Output: f.Output.File,
		}
		path := h.datasetPath(f)
		if info, err := os.Stat(path); err == nil {
			mt := info.ModTime()
			fs.UpdatedAt = &mt
		}
		if tbl, err := h.tables.Load(path, f.Output.Sheet); err != nil {
			fs.Error = err.Error()
		} else {
			fs.DatasetRows = tbl.Len()
		}
		if fs.DatasetRows > 0 {
			resp.Initialized = true
		}
		resp.Forms = append(resp.Forms, fs)
	}

	if h.store != nil {
		if run, err := h.store.LastRun(); err == nil {
			resp.LastRun = run
		}
	}

	c.JSON(http.StatusOK, resp)
}

// FormInfo settings summary of one form
type FormInfo struct {
	ID            string   `json:"id"`
	Tag           string   `json:"tag"`
	Title         string   `json:"title"`
	Version       string   `json:"version,omitempty"`
	Kind          string   `json:"kind"`
	Format        string   `json:"format"`
	Pattern       string   `json:"pattern"`
	Items         int      `json:"items,omitempty"` // configured item rows
	MaxPerItem    float64  `json:"maxPerItem,omitempty"`
	Bands         []string `json:"bands,omitempty"`
	CommonColumns []string `json:"commonColumns"`
	DedupKey      []string `json:"dedupKey"`
}

// ListForms form settings summary
// GET /api/forms
func (h *Handler) ListForms(c *gin.Context) {
	out := make([]FormInfo, 0, len(h.forms))
	for _, f := range h.forms {
		info := FormInfo{
			ID:            f.ID,
			Tag:           f.Tag,
			Title:         f.Title,
			Version:       f.Version,
			Kind:          string(f.Kind),
			Format:        f.Source.Format,
			Pattern:       f.Source.Pattern,
			CommonColumns: f.CommonColumns,
			DedupKey:      f.DedupKey,
		}
		if f.Kind == config.KindScored {
			info.MaxPerItem = f.Scoring.MaxPerItem
			for _, b := range f.Items.Blocks {
				info.Items += b.End - b.Start + 1
			}
			for _, r := range f.Classification.Rules {
				info.Bands = append(info.Bands, r.Label)
			}
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"forms": out})
}
