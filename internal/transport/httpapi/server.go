package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/queue"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/storage"
	"github.com/SKUDURRRRR/chessanalytics-sub001/pkg/analysisdto"
)

// Handler exposes the analysis queue and stored results over REST.
type Handler struct {
	queue   *queue.Queue
	repo    storage.Repository
	variant string
}

func NewHandler(q *queue.Queue, repo storage.Repository, variant string) *Handler {
	if variant == "" {
		variant = "default"
	}
	return &Handler{queue: q, repo: repo, variant: variant}
}

// NewFiberApp builds the app with routes and middleware attached.
func NewFiberApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", h.Health)

	api := app.Group("/api/v1")
	api.Post("/analyze", h.Analyze)
	api.Get("/jobs/:jobId", h.JobStatus)
	api.Get("/jobs/:jobId/games/:gameRef", h.GameResult)
	api.Get("/profiles/:platform/:userId", h.TraitProfile)
	api.Get("/results/:platform/:userId", h.RecentResults)

	return app
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"running_jobs": h.queue.RunningCount(),
	})
}

// Analyze submits a job. A duplicate submission for a subject with a live job
// returns that job with 200 instead of creating a second one.
func (h *Handler) Analyze(c *fiber.Ctx) error {
	var req analysisdto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, analysisdto.CodeMalformedInput, "invalid request body", true)
	}

	subject := domain.Subject{UserID: req.UserID, Platform: req.Platform}
	job, created, err := h.queue.Submit(c.UserContext(), subject, req.Limit)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrInvalidSubject):
			return fail(c, fiber.StatusBadRequest, analysisdto.CodeMalformedInput, "user_id and platform are required", false)
		case errors.Is(err, queue.ErrQueueClosed):
			return fail(c, fiber.StatusServiceUnavailable, analysisdto.CodeQueueClosed, "service is shutting down", true)
		default:
			return err
		}
	}

	status := fiber.StatusAccepted
	if !created {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(analysisdto.AnalyzeResponse{
		JobID:    job.ID,
		Existing: !created,
		Status:   job.Status,
	})
}

func (h *Handler) JobStatus(c *fiber.Ctx) error {
	job, err := h.queue.Status(c.Params("jobId"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return fail(c, fiber.StatusNotFound, analysisdto.CodeJobNotFound, "job not found", false)
		}
		return err
	}
	return c.JSON(analysisdto.JobStatusFromJob(job))
}

func (h *Handler) GameResult(c *fiber.Ctx) error {
	res, err := h.queue.GameResult(c.Params("jobId"), c.Params("gameRef"))
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			return fail(c, fiber.StatusNotFound, analysisdto.CodeJobNotFound, "job not found", false)
		case errors.Is(err, queue.ErrResultNotFound):
			// Swept from the in-memory set; the durable store may still have it.
			if stored := h.storedResult(c); stored != nil {
				return c.JSON(analysisdto.GameResultResponse{Result: stored})
			}
			return fail(c, fiber.StatusNotFound, analysisdto.CodeResultNotFound, "game result not found", false)
		default:
			return err
		}
	}
	return c.JSON(analysisdto.GameResultResponse{Result: res})
}

func (h *Handler) storedResult(c *fiber.Ctx) *domain.GameAnalysisResult {
	if h.repo == nil {
		return nil
	}
	job, err := h.queue.Status(c.Params("jobId"))
	if err != nil {
		return nil
	}
	res, err := h.repo.GetGameResult(c.UserContext(), job.Subject, c.Params("gameRef"), h.variant)
	if err != nil {
		return nil
	}
	return res
}

func (h *Handler) TraitProfile(c *fiber.Ctx) error {
	if h.repo == nil {
		return fail(c, fiber.StatusNotFound, analysisdto.CodeResultNotFound, "no profile store configured", false)
	}
	subject := domain.Subject{UserID: c.Params("userId"), Platform: c.Params("platform")}
	profile, games, err := h.repo.GetTraitProfile(c.UserContext(), subject)
	if err != nil {
		return err
	}
	if profile == nil {
		return fail(c, fiber.StatusNotFound, analysisdto.CodeResultNotFound, "no trait profile for subject", false)
	}
	return c.JSON(analysisdto.TraitProfileResponse{
		UserID:        subject.UserID,
		Platform:      subject.Platform,
		Profile:       *profile,
		GamesAnalyzed: games,
	})
}

func (h *Handler) RecentResults(c *fiber.Ctx) error {
	if h.repo == nil {
		return fail(c, fiber.StatusNotFound, analysisdto.CodeResultNotFound, "no result store configured", false)
	}
	subject := domain.Subject{UserID: c.Params("userId"), Platform: c.Params("platform")}
	results, err := h.repo.GetRecentResults(c.UserContext(), subject, c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": results})
}

func fail(c *fiber.Ctx, status int, code, message string, retryable bool) error {
	return c.Status(status).JSON(analysisdto.DomainError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	resp := analysisdto.DomainError{Code: analysisdto.CodeInternal, Message: "internal server error"}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		resp.Message = fe.Message
		if code == fiber.StatusNotFound {
			resp.Code = analysisdto.CodeResultNotFound
		}
	}
	return c.Status(code).JSON(resp)
}
