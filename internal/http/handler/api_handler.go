package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/app/repository"
	"github.com/sifan077/LinkTrace/internal/app/service"
	"github.com/sifan077/LinkTrace/internal/http/middleware"
	httpUtil "github.com/sifan077/LinkTrace/internal/http/util"
	"github.com/sifan077/LinkTrace/internal/infra/metrics"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger         *zap.Logger
	Links          service.LinkService
	Analytics      service.AnalyticsService
	VisitPublisher *service.VisitPublisher
	DeleteTokens   *httpUtil.TokenSigner
	BaseURL        string
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger         *zap.Logger
	links          service.LinkService
	analytics      service.AnalyticsService
	visitPublisher *service.VisitPublisher
	deleteTokens   *httpUtil.TokenSigner
	baseURL        string
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:         logger,
		links:          deps.Links,
		analytics:      deps.Analytics,
		visitPublisher: deps.VisitPublisher,
		deleteTokens:   deps.DeleteTokens,
		baseURL:        deps.BaseURL,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", middleware.RequireAuth(), h.ListLinks)
			links.Get("/:code/stats", h.GetStats)
			links.Delete("/:code", h.DeleteLink)
		}
		api.Post("/visits", h.TrackVisit)
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	URL string `json:"url"`
}

// CreateLinkResponse represents the response for creating a link.
type CreateLinkResponse struct {
	Code      string     `json:"code"`
	ShortURL  string     `json:"short_url"`
	TargetURL string     `json:"target_url"`
	Tier      model.Tier `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	// DeleteToken is only set for anonymous links; it is the creator's only
	// handle for deleting the link before the reaper claims it.
	DeleteToken string `json:"delete_token,omitempty"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url is required",
		})
	}

	owner := middleware.OwnerFromCtx(c)

	result, err := h.links.CreateLink(h.requestCtx(c), service.CreateLinkInput{
		TargetURL: req.URL,
		OwnerID:   owner,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTarget):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "url must be an absolute http or https URL",
			})
		case errors.Is(err, service.ErrGenerationExhausted):
			h.logger.Error("code generation exhausted", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to allocate a short code",
			})
		default:
			h.logger.Error("failed to create link", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create link",
			})
		}
	}

	link := result.Link
	resp := CreateLinkResponse{
		Code:      link.Code,
		ShortURL:  fmt.Sprintf("%s/%s", h.baseURL, link.Code),
		TargetURL: link.TargetURL,
		Tier:      link.Tier,
		ExpiresAt: link.ExpiresAt,
		CreatedAt: link.CreatedAt,
	}

	if result.Existing {
		return c.Status(fiber.StatusOK).JSON(resp)
	}

	metrics.LinksCreated.Inc()

	if !link.Owned() && h.deleteTokens != nil {
		token, err := h.deleteTokens.Issue(link.Code)
		if err != nil {
			// The link exists either way; the creator just loses early delete.
			h.logger.Warn("failed to issue delete token",
				zap.Error(err), zap.String("code", link.Code))
		} else {
			resp.DeleteToken = token
		}
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ListLinks handles GET /api/links, returning the caller's links with their
// analytics, most recently created first.
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	owner := middleware.OwnerFromCtx(c)
	if owner == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	reports, err := h.analytics.ListByOwner(h.requestCtx(c), *owner)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	return c.JSON(fiber.Map{
		"links": reports,
		"count": len(reports),
	})
}

// GetStats handles GET /api/links/:code/stats
func (h *APIHandler) GetStats(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}

	report, err := h.analytics.Report(h.requestCtx(c), code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		}
		h.logger.Error("failed to build report", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to build report",
		})
	}

	return c.JSON(report)
}

// DeleteLink handles DELETE /api/links/:code. Owners delete their own links;
// anonymous links require the delete token issued at creation.
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}

	owner := middleware.OwnerFromCtx(c)

	// A supplied token must be valid for this code; validity is passed down
	// so anonymous links can never be deleted without it, authenticated
	// caller or not.
	hasDeleteToken := false
	if token := c.Query("token"); token != "" {
		if h.deleteTokens == nil || h.deleteTokens.Validate(code, token) != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired delete token",
			})
		}
		hasDeleteToken = true
	}
	if owner == nil && !hasDeleteToken {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "delete token required",
		})
	}

	if err := h.links.DeleteLink(h.requestCtx(c), code, owner, hasDeleteToken); err != nil {
		switch {
		case errors.Is(err, service.ErrNotOwner):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "link belongs to another owner",
			})
		case errors.Is(err, service.ErrDeleteTokenRequired):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "delete token required",
			})
		}
		h.logger.Error("failed to delete link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete link",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TrackVisitRequest represents the request body for client-side visit
// tracking, optionally carrying browser-supplied coordinates.
type TrackVisitRequest struct {
	Code      string   `json:"code"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// TrackVisit handles POST /api/visits
func (h *APIHandler) TrackVisit(c *fiber.Ctx) error {
	var req TrackVisitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}

	if _, err := h.links.Resolve(h.requestCtx(c), req.Code); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		}
		h.logger.Error("failed to resolve link", zap.Error(err), zap.String("code", req.Code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Get("User-Agent")
	}
	address := clientAddress(c)

	if err := h.visitPublisher.Publish(req.Code, address, userAgent, req.Lat, req.Lon); err != nil {
		h.logger.Error("failed to publish visit event",
			zap.Error(err), zap.String("code", req.Code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to track visit",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "visit tracked",
	})
}

func (h *APIHandler) requestCtx(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
