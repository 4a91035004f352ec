package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"url2pdf/internal/config"
	"url2pdf/internal/domain"
	"url2pdf/internal/infra/cache"
	"url2pdf/internal/infra/chrome"
	"url2pdf/internal/infra/logging"
)

const (
	welcomeMessage  = "Welcome to URL to PDF converter API"
	binaryFileName  = "webpage.pdf"
	msgInvalidBody  = "Invalid request body"
	msgPDFTooLarge  = "PDF exceeds allowed size"
	modeEnvelope    = "envelope"
	modeBinary      = "binary"
	resultCacheHit  = "cache_hit"
	resultSucceeded = "ok"
)

// PDFCache is the optional store for rendered PDFs.
type PDFCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, pdf []byte)
}

// PoolStats exposes Chrome pool usage.
type PoolStats interface {
	Stats(timeoutSecs int) chrome.Stats
}

// ConvertService turns URLs into PDFs for both response modes.
type ConvertService struct {
	cfg      config.Config
	settings domain.RenderSettings
	renderer domain.Renderer
	cache    PDFCache
	pool     PoolStats
}

// NewConvertService wires the handlers. pdfCache and pool may be nil.
func NewConvertService(cfg config.Config, renderer domain.Renderer, pdfCache PDFCache, pool PoolStats) (*ConvertService, error) {
	settings, err := cfg.Render.Settings()
	if err != nil {
		return nil, err
	}
	return &ConvertService{
		cfg:      cfg,
		settings: settings,
		renderer: renderer,
		cache:    pdfCache,
		pool:     pool,
	}, nil
}

// HandleWelcome answers the root path with a plain greeting.
func (svc *ConvertService) HandleWelcome(c *fiber.Ctx) error {
	return c.SendString(welcomeMessage)
}

// HandleEnvelopeConversion reads a JSON request body and returns the PDF
// base64-encoded inside a JSON envelope.
func (svc *ConvertService) HandleEnvelopeConversion(c *fiber.Ctx) error {
	req, err := parseConversionBody(c)
	if err != nil {
		return svc.fail(c, modeEnvelope, err)
	}

	opts, pdf, err := svc.convert(c, modeEnvelope, req)
	if err != nil {
		return svc.fail(c, modeEnvelope, err)
	}
	return c.JSON(domain.NewEnvelope(opts.Host, pdf))
}

// HandleBinaryConversion reads the options from the query string and
// streams the PDF as a download.
func (svc *ConvertService) HandleBinaryConversion(c *fiber.Ctx) error {
	req := domain.ConversionRequest{
		URL:          c.Query("url"),
		Viewport:     domain.FlexString(c.Query("viewport")),
		MarginTop:    domain.FlexString(c.Query("marginTop")),
		MarginRight:  domain.FlexString(c.Query("marginRight")),
		MarginBottom: domain.FlexString(c.Query("marginBottom")),
		MarginLeft:   domain.FlexString(c.Query("marginLeft")),
		Scale:        domain.FlexString(c.Query("scale")),
	}

	_, pdf, err := svc.convert(c, modeBinary, req)
	if err != nil {
		return svc.fail(c, modeBinary, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+binaryFileName)
	return c.Send(pdf)
}

// parseConversionBody decodes the JSON body. An empty body is an empty
// request, which then fails validation for the missing URL.
func parseConversionBody(c *fiber.Ctx) (domain.ConversionRequest, error) {
	var req domain.ConversionRequest
	body := c.Body()
	if len(body) == 0 {
		return req, nil
	}
	if err := c.App().Config().JSONDecoder(body, &req); err != nil {
		return req, domain.NewError(domain.KindValidation, msgInvalidBody, err)
	}
	return req, nil
}

// convert validates the request, then serves the PDF from cache or renders it.
func (svc *ConvertService) convert(c *fiber.Ctx, mode string, req domain.ConversionRequest) (domain.ConversionOptions, []byte, error) {
	opts, err := req.Normalize(svc.cfg.Render.DefaultViewport)
	if err != nil {
		return opts, nil, err
	}

	ctx := c.UserContext()
	key := cache.Key(opts)
	if svc.cache != nil {
		if cached, err := svc.cache.Get(ctx, key); err == nil && cached != nil {
			conversionsTotal.WithLabelValues(mode, resultCacheHit).Inc()
			return opts, cached, nil
		}
	}

	start := time.Now()
	pdf, err := svc.renderer.RenderPageToPDF(ctx, opts.RenderRequest(svc.settings))
	renderDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		return opts, nil, domain.ClassifyRenderError(err)
	}

	if len(pdf) > svc.cfg.Limits.MaxPDFBytes {
		return opts, nil, domain.NewError(domain.KindTooLarge, msgPDFTooLarge,
			fmt.Errorf("%d bytes, limit %d", len(pdf), svc.cfg.Limits.MaxPDFBytes))
	}

	if svc.cache != nil {
		svc.cache.Set(ctx, key, pdf)
	}

	conversionsTotal.WithLabelValues(mode, resultSucceeded).Inc()
	pdfSizeBytes.Observe(float64(len(pdf)))
	logging.Info("PDF generated", "url", opts.URL, "bytes", len(pdf), "request_id", requestID(c))
	return opts, pdf, nil
}

// fail writes the error response: JSON for the envelope mode, plain text for
// the binary mode.
func (svc *ConvertService) fail(c *fiber.Ctx, mode string, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.ClassifyRenderError(err)
	}
	conversionsTotal.WithLabelValues(mode, string(de.Kind)).Inc()

	status := de.StatusCode()
	msg := de.Message()
	if de.Kind == domain.KindValidation {
		logging.Warn("Conversion rejected", "path", c.Path(), "status", status, "message", msg, "request_id", requestID(c))
	} else {
		logging.Error("PDF generation failed", "path", c.Path(), "status", status, "kind", de.Kind, "error", err, "request_id", requestID(c))
	}

	if mode == modeBinary {
		return c.Status(status).SendString(msg)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func requestID(c *fiber.Ctx) string {
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

// HandleChromeStats exposes basic observability for the Chrome pool (capacity / idle / in_use).
func (svc *ConvertService) HandleChromeStats(c *fiber.Ctx) error {
	timeoutSecs := svc.cfg.Render.TimeoutSecs
	// Pool disabled.
	if svc.pool == nil {
		return c.JSON(chrome.Stats{
			PoolSizeConf: svc.cfg.Render.ChromePoolSize,
			TimeoutSecs:  timeoutSecs,
		})
	}
	return c.JSON(svc.pool.Stats(timeoutSecs))
}
