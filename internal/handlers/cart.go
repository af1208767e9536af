package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"
)

// CartService is implemented by service.CartService.
type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	AddItem(ctx context.Context, cmd service.AddItemCommand) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd service.UpdateItemQuantityCommand) (*domain.Cart, error)
}

type CartHandler struct {
	svc CartService
}

func NewCartHandler(svc CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) Register(r gin.IRoutes) {
	r.GET("/health", h.HealthCheck)
	r.GET("/carts/:userId", h.GetCart)
	r.POST("/carts/:userId/items", h.AddItem)
	r.PATCH("/carts/:userId/items/:productId", h.UpdateItemQuantity)
}

// HealthCheck returns server status
func (h *CartHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "cart-service"})
}

func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := parseUUID(c, "userId")
	if !ok {
		return
	}

	cart, err := h.svc.GetCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK, cart)
}

// AddItem adds a product to the user's cart, creating the cart on first use
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, ok := parseUUID(c, "userId")
	if !ok {
		return
	}

	var req models.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ProductID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
		return
	}

	cart, err := h.svc.AddItem(c.Request.Context(), service.AddItemCommand{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK, cart)
}

func (h *CartHandler) UpdateItemQuantity(c *gin.Context) {
	userID, ok := parseUUID(c, "userId")
	if !ok {
		return
	}
	productID, ok := parseUUID(c, "productId")
	if !ok {
		return
	}

	var req models.UpdateItemQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.svc.UpdateItemQuantity(c.Request.Context(), service.UpdateItemQuantityCommand{
		UserID:      userID,
		ProductID:   productID,
		NewQuantity: *req.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK, cart)
}

func (h *CartHandler) respondCart(c *gin.Context, status int, cart *domain.Cart) {
	resp, err := models.NewCartResponse(cart)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, resp)
}
