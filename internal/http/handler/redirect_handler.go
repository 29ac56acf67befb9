package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/LinkTrace/internal/app/repository"
	"github.com/sifan077/LinkTrace/internal/app/service"
	"github.com/sifan077/LinkTrace/internal/http/view"
	"github.com/sifan077/LinkTrace/internal/infra/metrics"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger         *zap.Logger
	Links          service.LinkService
	Analytics      service.AnalyticsService
	VisitPublisher *service.VisitPublisher
}

// RedirectHandler implements the redirect and preview flows.
type RedirectHandler struct {
	logger         *zap.Logger
	links          service.LinkService
	analytics      service.AnalyticsService
	visitPublisher *service.VisitPublisher
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:         logger,
		links:          deps.Links,
		analytics:      deps.Analytics,
		visitPublisher: deps.VisitPublisher,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:code", h.Resolve)
	router.Get("/:code/_preview", h.Preview)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "LinkTrace",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:code. The redirect is issued immediately; visit
// recording happens through the event pipeline and never delays or fails
// the response.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	link, err := h.links.Resolve(ctx, code)
	if err != nil {
		return h.renderResolveError(c, code, err)
	}

	if h.visitPublisher != nil {
		// Copy request values out before the handler returns; the fiber
		// context is recycled and must not leak into the goroutine.
		address := clientAddress(c)
		userAgent := c.Get("User-Agent")
		go h.publishVisit(code, address, userAgent, nil, nil)
	}

	metrics.RedirectsServed.Inc()
	h.logger.Debug("redirecting short link",
		zap.String("code", code), zap.String("target", link.TargetURL))
	return c.Redirect(link.TargetURL, fiber.StatusFound)
}

// Preview handles GET /:code/_preview, showing the destination without
// counting a visit.
func (h *RedirectHandler) Preview(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := h.analytics.Report(ctx, code)
	if err != nil {
		return h.renderResolveError(c, code, err)
	}

	html, err := view.RenderPreviewPage(view.PreviewPageData{
		Code:       report.Code,
		TargetURL:  report.TargetURL,
		VisitCount: report.VisitCount,
		CreatedAt:  report.CreatedAt,
		ExpiresAt:  report.ExpiresAt,
	})
	if err != nil {
		h.logger.Error("failed to render preview page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to render page",
		})
	}

	return c.
		Type("html", "utf-8").
		SendString(html)
}

func (h *RedirectHandler) renderResolveError(c *fiber.Ctx, code string, err error) error {
	if errors.Is(err, repository.ErrLinkNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "short link not found",
		})
	}
	h.logger.Error("failed to load link", zap.Error(err), zap.String("code", code))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}

func (h *RedirectHandler) publishVisit(code, address, userAgent string, lat, lon *float64) {
	if err := h.visitPublisher.Publish(code, address, userAgent, lat, lon); err != nil {
		h.logger.Error("failed to publish visit event",
			zap.Error(err), zap.String("code", code))
	}
}

// clientAddress prefers the proxy-set forwarding headers over the socket
// peer, mirroring what the recorder expects to normalize.
func clientAddress(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := c.Get("X-Real-IP"); real != "" {
		return real
	}
	return c.IP()
}
