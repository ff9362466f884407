package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"school-identity-onboarding/internal/batch"
	"school-identity-onboarding/internal/config"
	"school-identity-onboarding/internal/importfile"
	"school-identity-onboarding/internal/listing"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/progress"
	"school-identity-onboarding/internal/template"
	"school-identity-onboarding/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type FileValidator interface {
	Validate(ctx context.Context, file model.ImportFile, role model.Role) importfile.Report
}

type Orchestrator interface {
	SubmitAndTrack(ctx context.Context, req batch.SubmitRequest) (*batch.SubmitResult, error)
	Commit(ctx context.Context, batchID string) error
	State(batchID string) (model.ImportState, bool)
	ProvisioningFor(identityBatchID string) (string, bool)
	CanCreateProvisioning(identityBatchID string) bool
	RememberProvisioning(identityBatchID, provisioningBatchID string)
	CreateAndRunProvisioning(ctx context.Context, identityBatchID string) (*batch.ProvisioningResult, error)
	RunProvisioning(ctx context.Context, provisioningBatchID string) (*batch.ProvisioningResult, error)
}

type BatchLister interface {
	ListBatchItems(ctx context.Context, batchID string, status string, page, size int) ([]byte, error)
	ListBatchErrors(ctx context.Context, batchID string, errorType string, page, size int) ([]byte, error)
	ListProvisioningItems(ctx context.Context, batchID string, skip, limit int) ([]byte, error)
}

type TemplateGenerator interface {
	Generate(ctx context.Context, role model.Role, format, source string) (*template.Template, error)
}

type HistoryReader interface {
	ListByEstablishment(ctx context.Context, establishmentID string, limit, offset int) ([]model.HistoryEntry, error)
	CountByEstablishment(ctx context.Context, establishmentID string) (int, error)
}

type ProgressStarter interface {
	Start(ctx context.Context, session progress.Session) *progress.Handle
	StreamAvailable() bool
}

// Dependencies are the services behind the handlers. History may be nil
// when no database is configured.
type Dependencies struct {
	Validator    FileValidator
	Orchestrator Orchestrator
	Lister       BatchLister
	Templates    TemplateGenerator
	History      HistoryReader
	Progress     ProgressStarter
}

type Handler struct {
	deps Dependencies
	cfg  *config.Config
	log  zerolog.Logger
}

func NewHandler(cfg *config.Config, deps Dependencies) *Handler {
	return &Handler{
		deps: deps,
		cfg:  cfg,
		log:  logger.Get(),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
		"features": gin.H{
			"history": h.deps.History != nil,
			"stream":  h.deps.Progress != nil && h.deps.Progress.StreamAvailable(),
			"archive": h.cfg.ArchiveEnabled(),
		},
	})
}

func (h *Handler) ValidateImport(c *gin.Context) {
	file, role, ok := h.readUpload(c)
	if !ok {
		return
	}

	report := h.deps.Validator.Validate(c.Request.Context(), file, role)
	if !report.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"ok":     false,
			"error":  report.Err.Error(),
			"report": report,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "report": report})
}

func (h *Handler) SubmitImport(c *gin.Context) {
	file, role, ok := h.readUpload(c)
	if !ok {
		return
	}

	result, err := h.deps.Orchestrator.SubmitAndTrack(c.Request.Context(), batch.SubmitRequest{
		File:            file,
		Role:            role,
		EstablishmentID: c.PostForm("establishment_id"),
	})
	if err != nil {
		h.respondSubmitError(c, result, err)
		return
	}

	resp := gin.H{
		"batch_id":        result.BatchID,
		"focus":           result.Focus,
		"committed":       result.Committed,
		"state":           result.State,
		"source_file_url": result.SourceFileURL,
		"report":          result.Report,
	}
	if result.CommitError != nil {
		resp["commit_error"] = result.CommitError.Error()
	}

	h.log.Info().
		Str("batch_id", result.BatchID).
		Str("role", role.String()).
		Str("state", string(result.State)).
		Msg("Import accepted")

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) respondSubmitError(c *gin.Context, result *batch.SubmitResult, err error) {
	if errors.Is(err, errors.ErrEstablishmentUnset) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "establishment_id is required"})
		return
	}

	var subErr errors.SubmissionError
	if errors.As(err, &subErr) {
		h.log.Error().Err(err).Str("establishment_id", subErr.EstablishmentID).Msg("Import submission failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"ok": false, "error": err.Error()}
	if result != nil {
		resp["report"] = result.Report
	}
	c.JSON(http.StatusUnprocessableEntity, resp)
}

func (h *Handler) CommitImport(c *gin.Context) {
	batchID := c.Param("batch_id")

	err := h.deps.Orchestrator.Commit(c.Request.Context(), batchID)
	if errors.Is(err, errors.ErrOperationInFlight) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	state, _ := h.deps.Orchestrator.State(batchID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "batch_id": batchID, "state": state})
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch_id": batchID, "state": state})
}

func (h *Handler) GetImportState(c *gin.Context) {
	batchID := c.Param("batch_id")

	state, known := h.deps.Orchestrator.State(batchID)
	provisioningID, _ := h.deps.Orchestrator.ProvisioningFor(batchID)

	c.JSON(http.StatusOK, gin.H{
		"batch_id":                batchID,
		"state":                   state,
		"known":                   known,
		"provisioning_batch_id":   provisioningID,
		"can_create_provisioning": h.deps.Orchestrator.CanCreateProvisioning(batchID),
	})
}

func (h *Handler) ListImportItems(c *gin.Context) {
	batchID := c.Param("batch_id")
	page, size := pageParams(c)

	raw, err := h.deps.Lister.ListBatchItems(c.Request.Context(), batchID, c.Query("status"), page, size)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to list batch items")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, listing.Normalize[model.BatchItem](raw))
}

func (h *Handler) ListImportErrors(c *gin.Context) {
	batchID := c.Param("batch_id")
	page, size := pageParams(c)

	raw, err := h.deps.Lister.ListBatchErrors(c.Request.Context(), batchID, c.Query("error_type"), page, size)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to list batch errors")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, listing.Normalize[map[string]any](raw))
}

// StreamProgress sends effective progress as server-sent events until the
// client disconnects.
func (h *Handler) StreamProgress(c *gin.Context) {
	batchID := c.Param("batch_id")
	stream := h.cfg.Progress.StreamDefault
	if v, ok := c.GetQuery("stream"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream flag"})
			return
		}
		stream = parsed
	}

	ctx := c.Request.Context()
	handle := h.deps.Progress.Start(ctx, progress.Session{BatchID: batchID, StreamEnabled: stream})
	defer handle.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	updates := handle.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("progress", snap)
			c.Writer.Flush()
		}
	}
}

type createProvisioningRequest struct {
	IdentityBatchID string `json:"identity_batch_id" binding:"required"`
}

func (h *Handler) CreateProvisioning(c *gin.Context) {
	var req createProvisioningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.deps.Orchestrator.CreateAndRunProvisioning(c.Request.Context(), req.IdentityBatchID)
	if err != nil {
		h.respondProvisioningError(c, req.IdentityBatchID, result, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RunProvisioning(c *gin.Context) {
	batchID := c.Param("batch_id")

	result, err := h.deps.Orchestrator.RunProvisioning(c.Request.Context(), batchID)
	if err != nil {
		h.respondProvisioningError(c, "", result, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) respondProvisioningError(c *gin.Context, identityBatchID string, result *batch.ProvisioningResult, err error) {
	switch {
	case errors.Is(err, errors.ErrProvisioningExists):
		existing, _ := h.deps.Orchestrator.ProvisioningFor(identityBatchID)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "provisioning_batch_id": existing})
		return
	case errors.Is(err, errors.ErrOperationInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"error": err.Error()}
	var pipeErr errors.ProvisioningPipelineError
	if errors.As(err, &pipeErr) {
		resp["stage"] = pipeErr.Stage
		resp["retryable"] = pipeErr.Retryable()
		if pipeErr.ProvisioningBatchID != "" {
			resp["provisioning_batch_id"] = pipeErr.ProvisioningBatchID
		}
	}
	if result != nil {
		resp["events"] = result.Events
	}
	c.JSON(http.StatusBadGateway, resp)
}

func (h *Handler) ListProvisioningItems(c *gin.Context) {
	batchID := c.Param("batch_id")
	page, size := pageParams(c)
	skip, limit := listing.Offset(page, size)

	if source := c.Query("source_identity_batch_id"); source != "" {
		h.deps.Orchestrator.RememberProvisioning(source, batchID)
	}

	raw, err := h.deps.Lister.ListProvisioningItems(c.Request.Context(), batchID, skip, limit)
	if err != nil {
		h.log.Error().Err(err).Str("provisioning_batch_id", batchID).Msg("Failed to list provisioning items")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result := listing.Normalize[model.BatchItem](raw)
	c.JSON(http.StatusOK, gin.H{
		"items":         result.Items,
		"total":         result.Total,
		"page":          result.Page,
		"size":          result.Size,
		"pages":         result.Pages,
		"status_counts": model.CountByStatus(result.Items),
	})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	role, err := model.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role"})
		return
	}

	tpl, err := h.deps.Templates.Generate(c.Request.Context(), role, c.Query("format"), c.Query("source"))
	if err != nil {
		if errors.Is(err, errors.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("role", role.String()).Msg("Failed to fetch template")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tpl.Filename))
	c.Data(http.StatusOK, tpl.ContentType, tpl.Data)
}

func (h *Handler) ListHistory(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is not configured"})
		return
	}

	ctx := c.Request.Context()
	establishmentID := c.Query("establishment_id")
	page, size := pageParams(c)
	offset, limit := listing.Offset(page, size)

	entries, err := h.deps.History.ListByEstablishment(ctx, establishmentID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	total, err := h.deps.History.CountByEstablishment(ctx, establishmentID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, model.CanonicalPage[model.HistoryEntry]{
		Items: entries,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: (total + size - 1) / size,
	})
}

// readUpload reads the multipart file and role shared by validate and
// submit. It writes the error response itself and reports false.
func (h *Handler) readUpload(c *gin.Context) (model.ImportFile, model.Role, bool) {
	maxBytes := h.cfg.Import.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+(1<<20))

	role, err := model.ParseRole(c.PostForm("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role"})
		return model.ImportFile{}, "", false
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file is required"})
		return model.ImportFile{}, "", false
	}
	if header.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", maxBytes)})
		return model.ImportFile{}, "", false
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return model.ImportFile{}, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return model.ImportFile{}, "", false
	}

	return model.ImportFile{Name: header.Filename, Data: data}, role, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return listing.Clamp(page, size)
}
