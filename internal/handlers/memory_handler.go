package handlers

import (
	"context"
	"errors"
	"log"
	"memory-service/internal/middleware"
	"memory-service/internal/models"
	"memory-service/internal/service"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
)

type MemoryHandler struct {
	memoryService *service.MemoryService
}

func NewMemoryHandler(memoryService *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{
		memoryService: memoryService,
	}
}

func (h *MemoryHandler) RegisterRoutes(app *fiber.App) {
	protectedGroup := app.Group("/protected/memories", middleware.UserRequired())

	protectedGroup.Get("/search", h.SearchMemories, middleware.PermissionRequired(middleware.ReadMemoryPermission))
	protectedGroup.Post("/", h.CreateMemory, middleware.PermissionRequired(middleware.WriteMemoryPermission))
	protectedGroup.Get("/:id", h.ViewMemory, middleware.PermissionRequired(middleware.ReadMemoryPermission))
	protectedGroup.Put("/:id", h.UpdateMemory, middleware.PermissionRequired(middleware.UpdateMemoryPermission))
	protectedGroup.Delete("/:id", h.DeleteMemory, middleware.PermissionRequired(middleware.DeleteMemoryPermission))
}

func (h *MemoryHandler) CreateMemory(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.CreateMemoryRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	memory, err := h.memoryService.CreateMemory(ctx, userID, &req)
	if err != nil {
		log.Printf("Failed to create memory for user %s: %v", userID, err)

		if errors.Is(err, service.ErrInvalidTrustValue) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create memory",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"memory": memory,
		},
	})
}

// ViewMemory is the trust-gated read: the response always carries the access
// outcome, and a disclosure only when some tier was earned.
func (h *MemoryHandler) ViewMemory(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	memoryID := c.Params("id")
	if memoryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Memory ID is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := h.memoryService.ViewMemory(ctx, userID, memoryID)
	if err != nil {
		log.Printf("Failed to view memory %s for user %s: %v", memoryID, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check access",
		})
	}

	status := fiber.StatusOK
	switch view.Outcome {
	case models.OutcomeNotFound, models.OutcomeDeleted:
		status = fiber.StatusNotFound
	case models.OutcomeNoPermission:
		status = fiber.StatusForbidden
	}

	return c.Status(status).JSON(fiber.Map{
		"data": view,
	})
}

func (h *MemoryHandler) UpdateMemory(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	memoryID := c.Params("id")

	var req models.UpdateMemoryRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	memory, err := h.memoryService.UpdateMemory(ctx, userID, memoryID, &req)
	if err != nil {
		log.Printf("Failed to update memory %s for user %s: %v", memoryID, userID, err)
		return handlerError(c, err, "Failed to update memory")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"memory": memory,
		},
	})
}

func (h *MemoryHandler) DeleteMemory(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	memoryID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.memoryService.DeleteMemory(ctx, userID, memoryID); err != nil {
		log.Printf("Failed to delete memory %s for user %s: %v", memoryID, userID, err)
		return handlerError(c, err, "Failed to delete memory")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Memory deleted",
	})
}

func (h *MemoryHandler) SearchMemories(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	query := &models.MemorySearchQuery{
		Query:    c.Query("q"),
		OwnerID:  c.Query("owner"),
		Page:     1,
		PageSize: 20,
	}

	if page, err := strconv.Atoi(c.Query("page", "1")); err == nil && page > 0 {
		query.Page = page
	}
	if pageSize, err := strconv.Atoi(c.Query("pageSize", "20")); err == nil && pageSize > 0 && pageSize <= 100 {
		query.PageSize = pageSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.memoryService.SearchMemories(ctx, userID, query)
	if err != nil {
		log.Printf("Failed to search memories for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search memories",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": result,
	})
}

// handlerError maps domain sentinels to HTTP statuses. Anything unknown is
// a 500 with a generic message; store errors never reach the client.
func handlerError(c fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrMemoryNotFound), errors.Is(err, service.ErrMemoryDeleted),
		errors.Is(err, service.ErrTokenNotFound), errors.Is(err, service.ErrNoPublishedCopies):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrModeratorRequired),
		errors.Is(err, service.ErrTokenWrongIssuer), errors.Is(err, service.ErrReviseNotAllowed):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyPublished), errors.Is(err, service.ErrNotPublished),
		errors.Is(err, service.ErrTokenInvalidOrExpired):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNoDestinations), errors.Is(err, service.ErrInvalidDestination),
		errors.Is(err, service.ErrWrongKind), errors.Is(err, service.ErrInvalidTrustValue),
		errors.Is(err, service.ErrInvalidModeration):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
	}
}
