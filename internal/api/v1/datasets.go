package v1

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/dataset"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
	"github.com/portillolaupa-ui/ucc-supervision/internal/scoring"
)

// Agreement follow-up columns
const (
	ColVerification = "MEDIO_VERIFICACION"
	ColDaysLeft     = "DIAS_RESTANTES"
	ColStatus       = "ESTADO"
	ColSupervisor   = "Supervisor"
	ColUnit         = "Unidad Territorial"
)

// DatasetResponse consolidated dataset as JSON
type DatasetResponse struct {
	Form    string        `json:"form"`
	Columns []string      `json:"columns"`
	Rows    []dataset.Row `json:"rows"`
	Total   int           `json:"total"` // rows after filtering, before paging
}

// GetDataset consolidated dataset, filtered by year, month, region, and paged by limit/offset
// GET /api/datasets/:form
func (h *Handler) GetDataset(c *gin.Context) {
	form, ok := h.findForm(c)
	if !ok {
		return
	}
	tbl, err := h.tables.Load(h.datasetPath(form), form.Output.Sheet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo leer el consolidado: " + err.Error()})
		return
	}

	rows := filterRows(tbl.Rows, map[string]string{
		model.ColYear:   c.Query("year"),
		model.ColMonth:  c.Query("month"),
		model.ColRegion: c.Query("region"),
	})
	total := len(rows)

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if offset < 0 {
		offset = 0
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	if rows == nil {
		rows = []dataset.Row{}
	}
	columns := tbl.Columns
	if columns == nil {
		columns = []string{}
	}
	c.JSON(http.StatusOK, DatasetResponse{Form: form.ID, Columns: columns, Rows: rows, Total: total})
}

// DownloadDataset the consolidated workbook
// GET /api/datasets/:form/download
func (h *Handler) DownloadDataset(c *gin.Context) {
	form, ok := h.findForm(c)
	if !ok {
		return
	}
	path := h.datasetPath(form)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "aún no existe el consolidado de " + form.Tag})
		return
	}
	c.FileAttachment(path, form.Output.File)
}

// DeadlineSummary agreement counts of one supervisor
type DeadlineSummary struct {
	Supervisor string  `json:"supervisor"`
	Total      int     `json:"total"`
	Overdue    int     `json:"overdue"`
	OverduePct float64 `json:"overduePct"`
}

// DeadlinesResponse agreements with their follow-up status
type DeadlinesResponse struct {
	Form         string            `json:"form"`
	Today        string            `json:"today"`
	Columns      []string          `json:"columns"`
	Rows         []dataset.Row     `json:"rows"`
	ByStatus     map[string]int    `json:"byStatus"`
	BySupervisor []DeadlineSummary `json:"bySupervisor"`
}

// GetDeadlines agreements of a findings form with days left and status.
// A non-empty MEDIO_VERIFICACION marks the agreement as done.
// GET /api/datasets/:form/deadlines
func (h *Handler) GetDeadlines(c *gin.Context) {
	form, ok := h.findForm(c)
	if !ok {
		return
	}
	if form.Kind != config.KindFindings {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s no registra acuerdos con plazo", form.Tag)})
		return
	}
	tbl, err := h.tables.Load(h.datasetPath(form), form.Output.Sheet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo leer el consolidado: " + err.Error()})
		return
	}

	rows := filterRows(tbl.Rows, map[string]string{
		ColUnit:        c.Query("unit"),
		model.ColMonth: c.Query("month"),
		ColSupervisor:  c.Query("supervisor"),
	})

	today := h.now()
	resp := DeadlinesResponse{
		Form:         form.ID,
		Today:        today.Format("2006-01-02"),
		Columns:      append(append([]string(nil), tbl.Columns...), ColDaysLeft, ColStatus),
		Rows:         make([]dataset.Row, 0, len(rows)),
		ByStatus:     map[string]int{},
		BySupervisor: []DeadlineSummary{},
	}
	bySup := map[string]*DeadlineSummary{}

	for _, r := range rows {
		out := make(dataset.Row, len(r)+2)
		for k, v := range r {
			out[k] = v
		}

		limit, hasDate := scoring.ParseLimitDate(cellText(r[form.Table.DateColumn]))
		if hasDate {
			out[ColDaysLeft] = scoring.DaysLeft(limit, today)
		} else {
			out[ColDaysLeft] = nil
		}
		verified := strings.TrimSpace(cellText(r[ColVerification])) != ""
		status := scoring.DeadlineStatus(limit, verified, today)
		out[ColStatus] = status

		resp.Rows = append(resp.Rows, out)
		resp.ByStatus[status]++

		sup := cellText(r[ColSupervisor])
		s, ok := bySup[sup]
		if !ok {
			s = &DeadlineSummary{Supervisor: sup}
			bySup[sup] = s
		}
		s.Total++
		if status == scoring.StatusOverdue {
			s.Overdue++
		}
	}

	for _, s := range bySup {
		s.OverduePct = scoring.Round1(float64(s.Overdue) / float64(s.Total) * 100)
		resp.BySupervisor = append(resp.BySupervisor, *s)
	}
	sort.Slice(resp.BySupervisor, func(i, j int) bool {
		return resp.BySupervisor[i].Supervisor < resp.BySupervisor[j].Supervisor
	})

	c.JSON(http.StatusOK, resp)
}

// filterRows keeps rows whose columns match every non-empty filter, case-insensitively
func filterRows(rows []dataset.Row, filters map[string]string) []dataset.Row {
	var out []dataset.Row
	for _, r := range rows {
		keep := true
		for col, want := range filters {
			want = strings.TrimSpace(want)
			if want == "" {
				continue
			}
			if !strings.EqualFold(strings.TrimSpace(cellText(r[col])), want) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
