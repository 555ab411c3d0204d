package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/importer"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/parser"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// EventResult last SSE event of an upload; Data is an UploadResult
const EventResult = "result"

// UploadResult outcome of an upload
type UploadResult struct {
	Upload  store.Upload          `json:"upload"`
	Summary *orchestrator.Summary `json:"summary,omitempty"`
}

type uploadRequest struct {
	form   config.FormSettings
	year   string
	month  string
	region string
}

// Upload stores a form under raw/<year>/<month>/<region>/ and processes its form type
// (SSE progress stream)
// POST /api/uploads
func (h *Handler) Upload(c *gin.Context) {
	req, msg := h.parseUpload(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no se encontró el archivo"})
		return
	}
	name := filepath.Base(fh.Filename)
	if ok, _ := doublestar.Match(req.form.Source.Pattern, name); !ok || strings.HasPrefix(name, "~$") {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("el archivo %s no corresponde al patrón %s", name, req.form.Source.Pattern)})
		return
	}

	dir := filepath.Join(h.cfg.RawDir(), req.year, req.month, req.region)
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo crear la carpeta de destino"})
		return
	}
	dest := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo guardar el archivo"})
		return
	}
	hash, err := fileHash(dest)
	if err != nil {
		h.logger.Warn("No se pudo calcular el hash", "path", dest, "error", err)
	}

	upload := store.Upload{
		ID:         uuid.NewString(),
		Form:       req.form.ID,
		Year:       req.year,
		Month:      req.month,
		Region:     req.region,
		Filename:   name,
		StoredPath: dest,
		Size:       fh.Size,
		Hash:       hash,
		Status:     store.UploadReceived,
		CreatedAt:  h.now(),
	}
	if h.store != nil {
		if err := h.store.CreateUpload(upload); err != nil {
			h.logger.Warn("No se pudo registrar la carga", "error", err)
		}
	}
	h.metrics.ObserveUpload(req.form.ID)
	h.logger.Info("Archivo guardado en: "+dest, logging.TagKey, req.form.Tag)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming no soportado"})
		return
	}

	writeEvent(c.Writer, flusher, importer.ProgressEvent{
		Type:      importer.EventInfo,
		Message:   "Archivo guardado en: " + dest,
		Data:      upload,
		Timestamp: time.Now(),
	})

	type outcome struct {
		summary *orchestrator.Summary
		err     error
	}
	progress := make(chan importer.ProgressEvent, 100)
	done := make(chan outcome, 1)
	go func() {
		defer close(progress)
		sum, err := h.orch.RunStep(c.Request.Context(), orchestrator.TriggerUpload, req.form.ID, progress)
		done <- outcome{sum, err}
	}()

	for event := range progress {
		writeEvent(c.Writer, flusher, event)
	}
	res := <-done
	if res.summary != nil {
		h.tables.Clear()
	}

	upload.Status = store.UploadProcessed
	switch {
	case errors.Is(res.err, orchestrator.ErrBusy):
		upload.Status = store.UploadFailed
		upload.Error = "hay un procesamiento en curso; el archivo se incluirá en la próxima ejecución"
	case res.err != nil:
		upload.Status = store.UploadFailed
		upload.Error = res.err.Error()
	case !res.summary.AllSucceeded():
		upload.Status = store.UploadFailed
		for _, st := range res.summary.Steps {
			if st.Error != "" {
				upload.Error = st.Error
			}
		}
	}
	if res.summary != nil {
		upload.RunID = res.summary.RunID
	}
	if h.store != nil {
		if err := h.store.FinishUpload(upload.ID, upload.Status, upload.RunID, upload.Error); err != nil {
			h.logger.Warn("No se pudo cerrar la carga", "error", err)
		}
	}

	msg = fmt.Sprintf("%s procesado correctamente", req.form.Tag)
	if upload.Status == store.UploadFailed {
		msg = "Error procesando el archivo: " + upload.Error
	}
	writeEvent(c.Writer, flusher, importer.ProgressEvent{
		Type:      EventResult,
		Message:   msg,
		Data:      UploadResult{Upload: upload, Summary: res.summary},
		Timestamp: time.Now(),
	})
}

// parseUpload validates the multipart fields; returns a user message on failure
func (h *Handler) parseUpload(c *gin.Context) (uploadRequest, string) {
	form, err := config.FindForm(h.forms, strings.TrimSpace(c.PostForm("form")))
	if err != nil {
		return uploadRequest{}, "tipo de anexo desconocido"
	}
	req := uploadRequest{
		form:   form,
		year:   strings.TrimSpace(c.DefaultPostForm("year", strconv.Itoa(h.now().Year()))),
		month:  strings.ToUpper(strings.TrimSpace(c.PostForm("month"))),
		region: strings.ToUpper(strings.TrimSpace(c.PostForm("region"))),
	}
	if len(req.year) != 4 || !parser.IsDigits(req.year) {
		return uploadRequest{}, "año inválido"
	}
	if !validSegment(req.month) {
		return uploadRequest{}, "mes inválido"
	}
	if !validSegment(req.region) {
		return uploadRequest{}, "región inválida"
	}
	return req, ""
}

// validSegment a single non-empty path element
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// writeEvent SSE format: data: {json}\n\n
func writeEvent(w io.Writer, flusher http.Flusher, event importer.ProgressEvent) {
	eventData, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", eventData)
	flusher.Flush()
}

// ListUploads upload history, newest first, optionally filtered by form
// GET /api/uploads
func (h *Handler) ListUploads(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"uploads": []store.Upload{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	uploads, err := h.store.ListUploads(c.Query("form"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if uploads == nil {
		uploads = []store.Upload{}
	}
	c.JSON(http.StatusOK, gin.H{"uploads": uploads})
}
