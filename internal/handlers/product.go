package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"
)

// ProductService is implemented by service.ProductService.
type ProductService interface {
	CreateProduct(ctx context.Context, in service.CreateProductInput) (*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	CheckStock(ctx context.Context, id uuid.UUID, quantity int) (service.StockCheck, error)
	RestockProduct(ctx context.Context, id uuid.UUID, quantity int) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in service.UpdateProductInput) (*domain.Product, error)
}

type ProductHandler struct {
	svc ProductService
}

func NewProductHandler(svc ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

func (h *ProductHandler) Register(r gin.IRoutes) {
	r.GET("/health", h.HealthCheck)
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.POST("/products", h.CreateProduct)
	r.PATCH("/products/:id", h.UpdateProduct)
	r.POST("/products/:id/restock", h.RestockProduct)
	r.GET("/products/:id/stock", h.CheckStock)
}

// HealthCheck returns server status
func (h *ProductHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "product-service"})
}

// ListProducts returns all products
func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.svc.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]models.ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, models.NewProductResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

// GetProduct returns a single product
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	product, err := h.svc.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProductResponse(product))
}

// CreateProduct creates a new product
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.svc.CreateProduct(c.Request.Context(), service.CreateProductInput{
		Name:         req.Name,
		Amount:       req.Amount,
		Currency:     req.Currency,
		InitialStock: req.InitialStock,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewProductResponse(product))
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.svc.UpdateProduct(c.Request.Context(), id, service.UpdateProductInput{
		Name:        req.Name,
		PriceAmount: req.Amount,
		Currency:    req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProductResponse(product))
}

func (h *ProductHandler) RestockProduct(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req models.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.svc.RestockProduct(c.Request.Context(), id, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProductResponse(product))
}

// CheckStock answers ?quantity=n without reserving anything
func (h *ProductHandler) CheckStock(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	quantity, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || quantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
		return
	}

	check, err := h.svc.CheckStock(c.Request.Context(), id, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StockCheckResponse{
		ProductID:         id,
		RequiredQuantity:  quantity,
		HasStock:          check.HasStock,
		AvailableQuantity: check.AvailableQuantity,
	})
}
