package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"srmchat/internal/chat"
	"srmchat/internal/logging"
	"srmchat/internal/models"
	"srmchat/internal/prefs"
)

const defaultMaxUploadBytes = 10 << 20 // 10 MB

// Attachments are bill photos or PDF invoices; everything else is refused at
// the edge.
var allowedContentTypes = []string{
	"image/",
	"application/pdf",
}

// LanguageStore reads and writes the persisted language preference.
type LanguageStore interface {
	Language(ctx context.Context) (string, error)
	SetLanguage(ctx context.Context, lang string) error
}

// Remote exposes the SRM service calls the facade uses directly.
type Remote interface {
	Health(ctx context.Context) (*models.HealthResponse, error)
	ExtractCIL(ctx context.Context, filename string, data []byte) (string, error)
}

// Handler wires HTTP routes to the conversation engine.
type Handler struct {
	engine    *chat.Engine
	remote    Remote
	languages LanguageStore
	maxUpload int64
	log       *logging.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(engine *chat.Engine, remote Remote, languages LanguageStore, maxUpload int64, log *logging.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		engine:    engine,
		remote:    remote,
		languages: languages,
		maxUpload: maxUpload,
		log:       log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.POST("/attachments", h.stageAttachment)
	api.GET("/attachments", h.listAttachments)
	api.DELETE("/attachments/:id", h.removeAttachment)
	api.POST("/chat/send", h.sendMessage)
	api.GET("/chat/transcript", h.getTranscript)
	api.POST("/chat/reset", h.resetConversation)
	api.POST("/chat/dismiss-error", h.dismissError)
	api.GET("/language", h.getLanguage)
	api.PUT("/language", h.setLanguage)
	api.POST("/ocr/extract-cil", h.extractCIL)
}

func isAllowedContentType(ct string) bool {
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func (h *Handler) stageAttachment(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	contentType := http.DetectContentType(data)
	if !isAllowedContentType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	view, err := h.engine.Stage(file.Filename, contentType, data)
	if err != nil {
		h.log.Warnw("stage attachment failed", "file", file.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stage attachment failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attachment": view})
}

func (h *Handler) listAttachments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"attachments": h.engine.Snapshot().Attachments})
}

func (h *Handler) removeAttachment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attachment id required"})
		return
	}
	h.engine.Unstage(id)
	c.Status(http.StatusNoContent)
}

type sendRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.engine.Send(c.Request.Context(), req.Content); err != nil {
		if errors.Is(err, chat.ErrSendInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "a send is already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) getTranscript(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) resetConversation(c *gin.Context) {
	h.engine.Reset(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) dismissError(c *gin.Context) {
	h.engine.ClearError()
	c.Status(http.StatusNoContent)
}

func (h *Handler) getLanguage(c *gin.Context) {
	lang, err := h.languages.Language(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"language":  lang,
		"direction": prefs.Direction(lang),
	})
}

type languageRequest struct {
	Language string `json:"language"`
}

func (h *Handler) setLanguage(c *gin.Context) {
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.languages.SetLanguage(c.Request.Context(), req.Language); err != nil {
		if errors.Is(err, prefs.ErrUnsupportedLanguage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"language":  req.Language,
		"direction": prefs.Direction(req.Language),
	})
}

// extractCIL forwards a single file to the specialized CIL extraction
// endpoint without staging it.
func (h *Handler) extractCIL(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	cil, err := h.remote.ExtractCIL(c.Request.Context(), file.Filename, data)
	if err != nil {
		h.log.Warnw("cil extraction failed", "file", file.Filename, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "cil extraction failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cil": cil})
}

func (h *Handler) health(c *gin.Context) {
	payload := gin.H{"status": "ok", "service": "srmchat"}
	remote, err := h.remote.Health(c.Request.Context())
	if err != nil {
		payload["srm"] = gin.H{"status": "unreachable"}
	} else {
		payload["srm"] = remote
	}
	c.JSON(http.StatusOK, payload)
}
