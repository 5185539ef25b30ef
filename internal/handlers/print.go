package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"proxysheet/internal/cache"
	"proxysheet/internal/domain"
	"proxysheet/internal/printer"
	"proxysheet/internal/render"
	u "proxysheet/internal/utils"
)

var filenameRE = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// PrintCard is one entry of a print request body.
type PrintCard struct {
	ID       string `json:"id"`
	Face     string `json:"face"`
	Quantity *int   `json:"quantity"`
}

// PrintBody is the JSON body of POST /v1/print.
type PrintBody struct {
	Cards    []PrintCard `json:"cards"`
	Filename string      `json:"filename"`
}

// PrintService bundles configuration and dependencies for print requests.
type PrintService struct {
	Config  *u.Config
	Printer *printer.Printer
	Pool    *render.Pool
	Cache   *cache.Store
}

// NewPrintService creates a PrintService.
func NewPrintService(cfg u.Config, p *printer.Printer, pool *render.Pool, store *cache.Store) *PrintService {
	return &PrintService{Config: &cfg, Printer: p, Pool: pool, Cache: store}
}

// HandlePrint renders the requested cards into a PDF download.
func (svc *PrintService) HandlePrint(c *fiber.Ctx) error {
	reqs, filename, err := validatePrintBody(c, *svc.Config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), svc.Config.Render.JobTimeout)
	defer cancel()

	res, err := svc.Printer.Run(ctx, printer.Job{Requests: reqs, Layout: svc.Config.Layout.Domain()})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			u.Error("Print job timeout", "timeout", svc.Config.Render.JobTimeout.String(), "error", err)
			return fiber.NewError(fiber.StatusRequestTimeout, "Print job took too long")
		case errors.Is(err, domain.ErrInvalidRequest):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNetwork):
			u.Error("Artwork retrieval failed", "error", err)
			return fiber.NewError(fiber.StatusBadGateway, "Artwork retrieval failed")
		}
		u.Error("Print job failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Print job failed")
	}

	u.Info("Sheet generated",
		"filename", filename,
		"pages", res.Pages,
		"cards", res.Cards,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	)

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
	c.Set("X-Sheet-Pages", strconv.Itoa(res.Pages))
	return c.Send(res.PDF)
}

// validatePrintBody parses and checks the request body.
func validatePrintBody(c *fiber.Ctx, cfg u.Config) ([]domain.CardRequest, string, error) {
	var body PrintBody
	if err := c.BodyParser(&body); err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "Invalid body: expected JSON")
	}
	if len(body.Cards) == 0 {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "Invalid cards: list is empty")
	}

	reqs := make([]domain.CardRequest, 0, len(body.Cards))
	total := 0
	for i, card := range body.Cards {
		id, err := uuid.Parse(strings.TrimSpace(card.ID))
		if err != nil {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid card %d: id must be a UUID", i))
		}
		face, err := domain.ParseFace(strings.ToLower(card.Face))
		if err != nil {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid card %d: face must be 'front' or 'back'", i))
		}
		qty := 1
		if card.Quantity != nil {
			qty = *card.Quantity
		}
		if qty < 1 {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid card %d: quantity must be at least 1", i))
		}
		total += qty
		if total > cfg.Limits.MaxCards {
			return nil, "", fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("Request exceeds %d cards", cfg.Limits.MaxCards))
		}
		reqs = append(reqs, domain.CardRequest{ID: id.String(), Face: face, Quantity: qty})
	}

	filename := body.Filename
	if filename == "" {
		filename = "proxies.pdf"
	} else {
		if !strings.HasSuffix(filename, ".pdf") {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, "Filename must end with .pdf")
		}
		if !filenameRE.MatchString(filename) {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
		}
	}
	return reqs, filename, nil
}

// HandleStats exposes render pool usage and the artwork cache size.
func (svc *PrintService) HandleStats(c *fiber.Ctx) error {
	s := svc.Pool.Stats()
	return c.JSON(fiber.Map{
		"enabled":         s.Enabled,
		"capacity":        s.Capacity,
		"idle":            s.Idle,
		"in_use":          s.InUse,
		"completed":       s.Completed,
		"failed":          s.Failed,
		"cache_entries":   svc.Cache.Len(),
		"job_timeout_sec": int(svc.Config.Render.JobTimeout / time.Second),
	})
}

// HandlePing answers liveness checks.
func HandlePing(c *fiber.Ctx) error {
	return c.SendString("pong!")
}
