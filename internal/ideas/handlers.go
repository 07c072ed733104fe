// Package ideas exposes ideas, analyses and the daily idea over HTTP.
package ideas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/ideaforge/internal/analysis"
	"github.com/jimdaga/ideaforge/internal/auth"
	"github.com/jimdaga/ideaforge/internal/dailyidea"
	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/storage"
	"github.com/jimdaga/ideaforge/internal/store"
)

// MaxUploadBytes caps a single attachment upload.
const MaxUploadBytes = 20 << 20

// BlobStore keeps uploaded attachment files.
type BlobStore interface {
	UploadFromReader(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	GetPresignedURL(ctx context.Context, objectName string) (string, error)
}

// Handler serves the idea API. blobs and enqueue may be nil, which disables
// file uploads and async generation respectively.
type Handler struct {
	store    *store.Store
	analyses *analysis.Service
	daily    *dailyidea.Scheduler
	ledger   *quota.Ledger
	blobs    BlobStore
	enqueue  func(ideaID, userID uint) error
	logger   *slog.Logger
}

// NewHandler creates the idea API handler
func NewHandler(
	st *store.Store,
	analyses *analysis.Service,
	daily *dailyidea.Scheduler,
	ledger *quota.Ledger,
	blobs BlobStore,
	enqueue func(ideaID, userID uint) error,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		store:    st,
		analyses: analyses,
		daily:    daily,
		ledger:   ledger,
		blobs:    blobs,
		enqueue:  enqueue,
		logger:   logger,
	}
}

// RegisterRoutes mounts the routes that need an authenticated user.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/credits", h.GetCredits)
	rg.POST("/ideas", h.CreateIdea)
	rg.GET("/ideas/:id", h.GetIdea)
	rg.POST("/ideas/:id/attachments", h.AddAttachment)
	rg.POST("/ideas/:id/analyze", h.Analyze)
	rg.GET("/ideas/:id/analysis", h.GetAnalysis)
	rg.POST("/ideas/:id/analysis/sections/:section", h.RegenerateSection)
}

// RegisterPublicRoutes mounts the routes anyone may read.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/daily-idea", h.GetDailyIdea)
	rg.GET("/daily-idea/status", h.GetDailyIdeaStatus)
}

type createIdeaRequest struct {
	Title       string   `json:"title" binding:"required"`
	OneLiner    string   `json:"one_liner"`
	Description string   `json:"description"`
	Links       []string `json:"links"`
}

type ideaResponse struct {
	ID           uint                 `json:"id"`
	Title        string               `json:"title"`
	OneLiner     string               `json:"one_liner"`
	Description  string               `json:"description"`
	Status       string               `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
	InProgress   bool                 `json:"in_progress"`
	Attachments  []attachmentResponse `json:"attachments"`
	CreatedAt    time.Time            `json:"created_at"`
}

type attachmentResponse struct {
	ID          uint   `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

type analysisResponse struct {
	ID        uint                       `json:"id"`
	IdeaID    uint                       `json:"idea_id"`
	CreatedAt time.Time                  `json:"created_at"`
	Sections  map[string]json.RawMessage `json:"sections"`
}

// GetCredits returns the caller's quota after applying any due daily reset
func (h *Handler) GetCredits(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	user, err := h.loadUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credits":           user.Credits,
		"credits_used":      user.CreditsUsed,
		"daily_allotment":   h.ledger.Allotment(),
		"last_credit_reset": user.LastCreditReset,
		"unlimited":         user.Unlimited(),
	})
}

// CreateIdea stores a new DRAFT idea, with optional link attachments
func (h *Handler) CreateIdea(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	var req createIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	idea := &models.Idea{
		UserID:      userID,
		Title:       title,
		OneLiner:    strings.TrimSpace(req.OneLiner),
		Description: req.Description,
	}
	for _, link := range req.Links {
		idea.Attachments = append(idea.Attachments, models.Attachment{
			Type: models.AttachmentTypeFor("", link),
			URL:  link,
		})
	}

	if err := h.store.CreateIdea(c.Request.Context(), idea); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.ideaView(c.Request.Context(), idea))
}

// GetIdea returns an idea with its status and attachments
func (h *Handler) GetIdea(c *gin.Context) {
	idea, ok := h.ownedIdea(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.ideaView(c.Request.Context(), idea))
}

// AddAttachment accepts either a multipart "file" upload or a JSON {"url": ...} link
func (h *Handler) AddAttachment(c *gin.Context) {
	idea, ok := h.ownedIdea(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	attachment := models.Attachment{IdeaID: idea.ID}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if h.blobs == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file uploads are not configured"})
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if header.Size > MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		objectName := storage.ObjectName(idea.UserID, idea.ID, header.Filename)
		if _, err := h.blobs.UploadFromReader(ctx, objectName, file, header.Size, contentType); err != nil {
			h.logger.Error("Attachment upload failed", "idea_id", idea.ID, "error", err.Error())
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to upload to storage"})
			return
		}

		attachment.Type = models.AttachmentTypeFor(contentType, "")
		attachment.FileName = header.Filename
		attachment.ContentType = contentType
		attachment.SizeBytes = header.Size
		attachment.ObjectKey = objectName
	} else {
		var req struct {
			URL string `json:"url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		attachment.Type = models.AttachmentTypeFor("", req.URL)
		attachment.URL = req.URL
	}

	if err := h.store.AddAttachment(ctx, &attachment); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.attachmentView(ctx, attachment))
}

// Analyze generates an analysis. With ?async=true the work is queued and
// the caller polls the idea for its status.
func (h *Handler) Analyze(c *gin.Context) {
	if c.Query("async") == "true" && h.enqueue != nil {
		h.analyzeAsync(c)
		return
	}

	userID, ok := auth.UserID(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}
	ideaID, ok := ideaIDParam(c)
	if !ok {
		return
	}

	result, err := h.analyses.Generate(c.Request.Context(), ideaID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysisView(result))
}

func (h *Handler) analyzeAsync(c *gin.Context) {
	idea, ok := h.ownedIdea(c)
	if !ok {
		return
	}

	// Refuse early so a queued task cannot fail silently on quota.
	user, err := h.loadUser(c.Request.Context(), idea.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.ledger.HasCredit(user) {
		h.respondError(c, analysis.ErrQuotaExhausted)
		return
	}

	if err := h.enqueue(idea.ID, idea.UserID); err != nil {
		h.logger.Error("Failed to enqueue analysis", "idea_id", idea.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue analysis"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"idea_id": idea.ID, "status": "queued"})
}

// GetAnalysis returns the idea's most recent analysis
func (h *Handler) GetAnalysis(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}
	ideaID, ok := ideaIDParam(c)
	if !ok {
		return
	}

	result, err := h.analyses.LatestAnalysis(c.Request.Context(), ideaID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysisView(result))
}

// RegenerateSection rewrites one section of the latest analysis
func (h *Handler) RegenerateSection(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}
	ideaID, ok := ideaIDParam(c)
	if !ok {
		return
	}

	result, err := h.analyses.RegenerateSection(c.Request.Context(), ideaID, userID, c.Param("section"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysisView(result))
}

// GetDailyIdea returns today's idea, or 202 while it is being generated
func (h *Handler) GetDailyIdea(c *gin.Context) {
	ctx := c.Request.Context()

	daily, err := h.daily.EnsureTodayGenerated(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if daily == nil {
		c.JSON(http.StatusAccepted, gin.H{"date": h.daily.Today(), "status": "generating"})
		return
	}

	idea, err := h.store.GetIdea(ctx, daily.IdeaID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	linked, err := h.store.GetAnalysis(ctx, daily.AnalysisID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     daily.Date,
		"template": daily.TemplateKey,
		"idea":     h.ideaView(ctx, idea),
		"analysis": analysisView(linked),
	})
}

// GetDailyIdeaStatus reports whether today's idea exists or is generating
func (h *Handler) GetDailyIdeaStatus(c *gin.Context) {
	date := h.daily.Today()

	_, err := h.store.FindDailyIdea(c.Request.Context(), date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":       date,
		"ready":      err == nil,
		"generating": h.daily.IsGenerating(date),
		"in_flight":  h.daily.InFlight(),
	})
}

func (h *Handler) loadUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return h.ledger.CheckAndReset(ctx, user)
}

func (h *Handler) ownedIdea(c *gin.Context) (*models.Idea, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return nil, false
	}
	ideaID, ok := ideaIDParam(c)
	if !ok {
		return nil, false
	}

	idea, err := h.store.GetIdea(c.Request.Context(), ideaID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if idea.UserID != userID {
		h.respondError(c, analysis.ErrForbidden)
		return nil, false
	}
	return idea, true
}

func (h *Handler) ideaView(ctx context.Context, idea *models.Idea) ideaResponse {
	resp := ideaResponse{
		ID:           idea.ID,
		Title:        idea.Title,
		OneLiner:     idea.OneLiner,
		Description:  idea.Description,
		Status:       idea.Status,
		ErrorMessage: idea.ErrorMessage,
		InProgress:   h.analyses.InProgress(idea.ID),
		Attachments:  make([]attachmentResponse, 0, len(idea.Attachments)),
		CreatedAt:    idea.CreatedAt,
	}
	for _, a := range idea.Attachments {
		resp.Attachments = append(resp.Attachments, h.attachmentView(ctx, a))
	}
	return resp
}

func (h *Handler) attachmentView(ctx context.Context, a models.Attachment) attachmentResponse {
	url := a.URL
	if a.ObjectKey != "" && h.blobs != nil {
		if presigned, err := h.blobs.GetPresignedURL(ctx, a.ObjectKey); err == nil {
			url = presigned
		} else {
			h.logger.Warn("Failed to presign attachment", "attachment_id", a.ID, "error", err.Error())
		}
	}
	return attachmentResponse{
		ID:          a.ID,
		Type:        a.Type,
		URL:         url,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
	}
}

func analysisView(a *models.Analysis) analysisResponse {
	sections, err := a.RawSections()
	if err != nil {
		sections = map[string]json.RawMessage{}
	}
	return analysisResponse{
		ID:        a.ID,
		IdeaID:    a.IdeaID,
		CreatedAt: a.CreatedAt,
		Sections:  sections,
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err.Error())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, analysis.ErrNoAnalysis):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, analysis.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, analysis.ErrGenerationInProgress):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrUnknownSection):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrProviderFatal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func ideaIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid idea id"})
		return 0, false
	}
	return uint(id), true
}
