package handlers

import (
	"context"
	"log"
	"memory-service/internal/middleware"
	"memory-service/internal/models"
	"memory-service/internal/service"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
)

type PublicationHandler struct {
	publicationService *service.PublicationService
}

func NewPublicationHandler(publicationService *service.PublicationService) *PublicationHandler {
	return &PublicationHandler{
		publicationService: publicationService,
	}
}

func (h *PublicationHandler) RegisterRoutes(app *fiber.App) {
	publicGroup := app.Group("/public/publications")
	publicGroup.Get("/search", h.Search)

	protectedGroup := app.Group("/protected/publications", middleware.UserRequired())
	protectedGroup.Post("/publish", h.Publish, middleware.PermissionRequired(middleware.PublishMemoryPermission))
	protectedGroup.Post("/retract", h.Retract, middleware.PermissionRequired(middleware.PublishMemoryPermission))
	protectedGroup.Post("/revise", h.Revise, middleware.PermissionRequired(middleware.PublishMemoryPermission))
	protectedGroup.Post("/confirm", h.Confirm, middleware.PermissionRequired(middleware.PublishMemoryPermission))
	protectedGroup.Post("/deny", h.Deny, middleware.PermissionRequired(middleware.PublishMemoryPermission))
	protectedGroup.Post("/moderate", h.Moderate, middleware.PermissionRequired(middleware.ModeratePublicationsPermission))
	protectedGroup.Get("/query", h.Query, middleware.PermissionRequired(middleware.ReadMemoryPermission))
	protectedGroup.Get("/moderation-queue", h.ModerationQueue, middleware.PermissionRequired(middleware.ModeratePublicationsPermission))
	protectedGroup.Get("/moderation-queue/counts", h.ModerationCounts, middleware.PermissionRequired(middleware.ModeratePublicationsPermission))
}

func (h *PublicationHandler) Publish(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.PublishRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := h.publicationService.Publish(ctx, userID, &req)
	if err != nil {
		log.Printf("Failed to prepare publish of memory %s by user %s: %v", req.MemoryID, userID, err)
		return handlerError(c, err, "Failed to prepare publish")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"data": token,
	})
}

func (h *PublicationHandler) Retract(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.RetractRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := h.publicationService.Retract(ctx, userID, &req)
	if err != nil {
		log.Printf("Failed to prepare retract of memory %s by user %s: %v", req.MemoryID, userID, err)
		return handlerError(c, err, "Failed to prepare retract")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"data": token,
	})
}

func (h *PublicationHandler) Revise(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.ReviseRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := h.publicationService.Revise(ctx, userID, &req)
	if err != nil {
		log.Printf("Failed to prepare revise of memory %s by user %s: %v", req.MemoryID, userID, err)
		return handlerError(c, err, "Failed to prepare revise")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"data": token,
	})
}

func (h *PublicationHandler) Confirm(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.ConfirmRequest
	if err := c.Bind().Body(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := h.publicationService.Confirm(ctx, userID, req.Token)
	if err != nil {
		log.Printf("Failed to confirm token for user %s: %v", userID, err)
		return handlerError(c, err, "Failed to confirm")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": report,
	})
}

func (h *PublicationHandler) Deny(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.ConfirmRequest
	if err := c.Bind().Body(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.publicationService.Deny(ctx, userID, req.Token); err != nil {
		log.Printf("Failed to deny token for user %s: %v", userID, err)
		return handlerError(c, err, "Failed to deny")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Pending action discarded",
	})
}

func (h *PublicationHandler) Moderate(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.ModerateRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.publicationService.Moderate(ctx, userID, &req); err != nil {
		log.Printf("Failed to moderate memory %s in %s by user %s: %v", req.MemoryID, req.DestinationID, userID, err)
		return handlerError(c, err, "Failed to moderate")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Moderation applied",
	})
}

func (h *PublicationHandler) Search(c fiber.Ctx) error {
	query := &models.PublicationSearchQuery{
		Query:         c.Query("q"),
		DestinationID: c.Query("destination"),
		Page:          1,
		PageSize:      20,
	}
	h.applyPaging(c, &query.Page, &query.PageSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.publicationService.Search(ctx, query)
	if err != nil {
		log.Printf("Failed to search publications: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search publications",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": result,
	})
}

func (h *PublicationHandler) Query(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	query := &models.PublicationSearchQuery{
		Query:         c.Query("q"),
		DestinationID: c.Query("destination"),
		AuthorID:      c.Query("author"),
		Status:        models.ModerationStatus(c.Query("status")),
		Page:          1,
		PageSize:      20,
	}
	h.applyPaging(c, &query.Page, &query.PageSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.publicationService.Query(ctx, userID, query)
	if err != nil {
		log.Printf("Failed to query publications for user %s: %v", userID, err)
		return handlerError(c, err, "Failed to query publications")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": result,
	})
}

func (h *PublicationHandler) ModerationQueue(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	destinationID := c.Query("destination")

	page, pageSize := 1, 20
	h.applyPaging(c, &page, &pageSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.publicationService.ModerationQueue(ctx, userID, destinationID, page, pageSize)
	if err != nil {
		log.Printf("Failed to load moderation queue for user %s: %v", userID, err)
		return handlerError(c, err, "Failed to load moderation queue")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": result,
	})
}

func (h *PublicationHandler) ModerationCounts(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := h.publicationService.ModerationCounts(ctx, userID)
	if err != nil {
		log.Printf("Failed to count pending publications for user %s: %v", userID, err)
		return handlerError(c, err, "Failed to count pending publications")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": counts,
	})
}

func (h *PublicationHandler) applyPaging(c fiber.Ctx, page, pageSize *int) {
	if p, err := strconv.Atoi(c.Query("page", "1")); err == nil && p > 0 {
		*page = p
	}
	if ps, err := strconv.Atoi(c.Query("pageSize", "20")); err == nil && ps > 0 && ps <= 100 {
		*pageSize = ps
	}
}
