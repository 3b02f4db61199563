package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/usecase"
)

// Message types accepted on the messages endpoint
const (
	MsgSearchProduct       = "SEARCH_PRODUCT"
	MsgReverseImageSearch  = "REVERSE_IMAGE_SEARCH"
	MsgGetSettings         = "GET_SETTINGS"
	MsgUpdateSettings      = "UPDATE_SETTINGS"
	MsgClearCache          = "CLEAR_CACHE"
	MsgGetSearchHistory    = "GET_SEARCH_HISTORY"
	MsgTrackAffiliateClick = "TRACK_AFFILIATE_CLICK"
	MsgGetAffiliateClicks  = "GET_AFFILIATE_CLICKS"
)

// ProductSearcher runs a text search for a product descriptor
type ProductSearcher interface {
	Search(ctx context.Context, descriptor *domain.ProductDescriptor, settings domain.Settings) (*domain.AggregateResult, error)
}

// ImageSearcher runs the reverse image chain
type ImageSearcher interface {
	Search(ctx context.Context, req usecase.ImageSearchRequest, settings domain.Settings) (*domain.AggregateResult, error)
}

// SettingsManager owns the extension's persisted state
type SettingsManager interface {
	GetSettings(ctx context.Context) (*domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)
	ClearCache(ctx context.Context) error
	History(ctx context.Context) ([]domain.HistoryEntry, error)
	TrackClick(ctx context.Context, platform, productURL string) (bool, error)
	Clicks(ctx context.Context) ([]domain.ClickEvent, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	search   ProductSearcher
	image    ImageSearcher
	settings SettingsManager
	version  string
}

// NewHandler creates a new HTTP handler
func NewHandler(search ProductSearcher, image ImageSearcher, settings SettingsManager, version string) *Handler {
	return &Handler{
		search:   search,
		image:    image,
		settings: settings,
		version:  version,
	}
}

// Message is the request envelope of the messages endpoint
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the reply envelope shared by every endpoint
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ClickRequest is the payload of an affiliate click
type ClickRequest struct {
	Platform   string `json:"platform"`
	ProductURL string `json:"productUrl"`
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricelens-backend",
		"version": h.version,
	})
}

// HandleMessage handles POST /api/v1/messages
func (h *Handler) HandleMessage(c *gin.Context) {
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		h.fail(c, domain.ErrMalformedInput)
		return
	}

	ctx := c.Request.Context()
	var (
		data interface{}
		err  error
	)

	switch strings.ToUpper(strings.TrimSpace(msg.Type)) {
	case MsgSearchProduct:
		var descriptor domain.ProductDescriptor
		if err = decodeData(msg.Data, &descriptor); err == nil {
			data, err = h.runSearch(ctx, &descriptor)
		}
	case MsgReverseImageSearch:
		var req usecase.ImageSearchRequest
		if err = decodeData(msg.Data, &req); err == nil {
			data, err = h.runImageSearch(ctx, req)
		}
	case MsgGetSettings:
		data, err = h.settings.GetSettings(ctx)
	case MsgUpdateSettings:
		var settings domain.Settings
		if err = decodeData(msg.Data, &settings); err == nil {
			_, err = h.settings.UpdateSettings(ctx, settings)
		}
	case MsgClearCache:
		err = h.settings.ClearCache(ctx)
	case MsgGetSearchHistory:
		data, err = h.settings.History(ctx)
	case MsgTrackAffiliateClick:
		var click ClickRequest
		if err = decodeData(msg.Data, &click); err == nil {
			_, err = h.settings.TrackClick(ctx, click.Platform, click.ProductURL)
		}
	case MsgGetAffiliateClicks:
		data, err = h.settings.Clicks(ctx)
	default:
		log.WithField("type", msg.Type).Warn("[HANDLER] Unknown message type")
		err = domain.ErrUnknownMessage
	}

	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// SearchProduct handles POST /api/v1/search
func (h *Handler) SearchProduct(c *gin.Context) {
	var descriptor domain.ProductDescriptor
	if err := c.ShouldBindJSON(&descriptor); err != nil {
		h.fail(c, domain.ErrMalformedInput)
		return
	}
	result, err := h.runSearch(c.Request.Context(), &descriptor)
	h.reply(c, result, err)
}

// SearchByImage handles POST /api/v1/search/image
func (h *Handler) SearchByImage(c *gin.Context) {
	var req usecase.ImageSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, domain.ErrMalformedInput)
		return
	}
	result, err := h.runImageSearch(c.Request.Context(), req)
	h.reply(c, result, err)
}

// GetSettings handles GET /api/v1/settings
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settings.GetSettings(c.Request.Context())
	h.reply(c, settings, err)
}

// UpdateSettings handles PUT /api/v1/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var settings domain.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.fail(c, domain.ErrMalformedInput)
		return
	}
	saved, err := h.settings.UpdateSettings(c.Request.Context(), settings)
	h.reply(c, saved, err)
}

// ClearCache handles DELETE /api/v1/cache
func (h *Handler) ClearCache(c *gin.Context) {
	h.reply(c, nil, h.settings.ClearCache(c.Request.Context()))
}

// SearchHistory handles GET /api/v1/history
func (h *Handler) SearchHistory(c *gin.Context) {
	history, err := h.settings.History(c.Request.Context())
	h.reply(c, history, err)
}

// TrackClick handles POST /api/v1/clicks
func (h *Handler) TrackClick(c *gin.Context) {
	var click ClickRequest
	if err := c.ShouldBindJSON(&click); err != nil {
		h.fail(c, domain.ErrMalformedInput)
		return
	}
	stored, err := h.settings.TrackClick(c.Request.Context(), click.Platform, click.ProductURL)
	h.reply(c, gin.H{"stored": stored}, err)
}

// AffiliateClicks handles GET /api/v1/clicks
func (h *Handler) AffiliateClicks(c *gin.Context) {
	clicks, err := h.settings.Clicks(c.Request.Context())
	h.reply(c, clicks, err)
}

// runSearch loads the current settings and passes them into the search
func (h *Handler) runSearch(ctx context.Context, descriptor *domain.ProductDescriptor) (*domain.AggregateResult, error) {
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return h.search.Search(ctx, descriptor, *settings)
}

func (h *Handler) runImageSearch(ctx context.Context, req usecase.ImageSearchRequest) (*domain.AggregateResult, error) {
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return h.image.Search(ctx, req, *settings)
}

func (h *Handler) reply(c *gin.Context, data interface{}, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail writes the error envelope with the status matching err
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	entry := log.WithFields(log.Fields{
		"path":       c.FullPath(),
		"status":     status,
		"request_id": c.GetString(requestIDKey),
	})
	if status >= http.StatusInternalServerError {
		entry.Errorf("[HANDLER] Request failed: %v", err)
	} else {
		entry.Infof("[HANDLER] Request rejected: %v", err)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error, try again later"
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedInput), errors.Is(err, domain.ErrUnknownMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSearchTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeData unmarshals a message payload. A missing payload decodes as the zero value.
func decodeData(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	return nil
}
