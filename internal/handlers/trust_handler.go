package handlers

import (
	"context"
	"log"
	"memory-service/internal/middleware"
	"memory-service/internal/models"
	"memory-service/internal/service"
	"time"

	"github.com/gofiber/fiber/v3"
)

type TrustHandler struct {
	trustService *service.TrustService
}

func NewTrustHandler(trustService *service.TrustService) *TrustHandler {
	return &TrustHandler{
		trustService: trustService,
	}
}

func (h *TrustHandler) RegisterRoutes(app *fiber.App) {
	protectedGroup := app.Group("/protected/trust", middleware.UserRequired())

	protectedGroup.Get("/config", h.GetConfig, middleware.PermissionRequired(middleware.ReadTrustPermission))
	protectedGroup.Put("/config", h.UpdateConfig, middleware.PermissionRequired(middleware.ManageTrustPermission))
	protectedGroup.Put("/users/:userId", h.SetUserTrust, middleware.PermissionRequired(middleware.ManageTrustPermission))
	protectedGroup.Delete("/users/:userId", h.RemoveUserTrust, middleware.PermissionRequired(middleware.ManageTrustPermission))
	protectedGroup.Post("/blocked/:userId", h.BlockUser, middleware.PermissionRequired(middleware.ManageTrustPermission))
	protectedGroup.Delete("/blocked/:userId", h.UnblockUser, middleware.PermissionRequired(middleware.ManageTrustPermission))
	protectedGroup.Get("/escalations", h.ListEscalations, middleware.PermissionRequired(middleware.ReadTrustPermission))
	protectedGroup.Delete("/escalations", h.ClearEscalation, middleware.PermissionRequired(middleware.ManageTrustPermission))
}

func (h *TrustHandler) GetConfig(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config, err := h.trustService.GetConfig(ctx, userID)
	if err != nil {
		log.Printf("Failed to get trust config for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load trust config",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"config": config,
		},
	})
}

func (h *TrustHandler) UpdateConfig(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")

	var req models.UpdateTrustConfigRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config, err := h.trustService.UpdateConfig(ctx, userID, &req)
	if err != nil {
		log.Printf("Failed to update trust config for user %s: %v", userID, err)
		return handlerError(c, err, "Failed to update trust config")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"config": config,
		},
	})
}

func (h *TrustHandler) SetUserTrust(c fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	targetID := c.Params("userId")

	var req models.SetUserTrustRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.trustService.SetUserTrust(ctx, ownerID, targetID, req.Trust); err != nil {
		log.Printf("Failed to set trust for user %s by owner %s: %v", targetID, ownerID, err)
		return handlerError(c, err, "Failed to set user trust")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User trust updated",
	})
}

func (h *TrustHandler) RemoveUserTrust(c fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	targetID := c.Params("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.trustService.RemoveUserTrust(ctx, ownerID, targetID); err != nil {
		log.Printf("Failed to remove trust for user %s by owner %s: %v", targetID, ownerID, err)
		return handlerError(c, err, "Failed to remove user trust")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User trust removed",
	})
}

func (h *TrustHandler) BlockUser(c fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	targetID := c.Params("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.trustService.BlockUser(ctx, ownerID, targetID); err != nil {
		log.Printf("Failed to block user %s by owner %s: %v", targetID, ownerID, err)
		return handlerError(c, err, "Failed to block user")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User blocked",
	})
}

func (h *TrustHandler) UnblockUser(c fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")
	targetID := c.Params("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.trustService.UnblockUser(ctx, ownerID, targetID); err != nil {
		log.Printf("Failed to unblock user %s by owner %s: %v", targetID, ownerID, err)
		return handlerError(c, err, "Failed to unblock user")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User unblocked",
	})
}

func (h *TrustHandler) ListEscalations(c fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	blocks, err := h.trustService.ListEscalations(ctx, ownerID)
	if err != nil {
		log.Printf("Failed to list escalations for owner %s: %v", ownerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list escalations",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"blocks": blocks,
		},
	})
}

func (h *TrustHandler) ClearEscalation(c fiber.Ctx) error {
	ownerID := c.Get("X-User-ID")

	var req models.ClearEscalationRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.trustService.ClearEscalation(ctx, ownerID, &req); err != nil {
		log.Printf("Failed to clear escalation for owner %s: %v", ownerID, err)
		return handlerError(c, err, "Failed to clear escalation")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Escalation cleared",
	})
}
