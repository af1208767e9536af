package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/client"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Stub ProductService keyed by id
type stubProducts struct {
	products map[uuid.UUID]*domain.Product
	err      error
}

func (s *stubProducts) CreateProduct(ctx context.Context, in service.CreateProductInput) (*domain.Product, error) {
	currency := in.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	price, err := domain.NewMoney(in.Amount, currency)
	if err != nil {
		return nil, err
	}
	stock, err := domain.NewStock(in.InitialStock)
	if err != nil {
		return nil, err
	}
	return domain.NewProduct(in.Name, price, stock)
}

func (s *stubProducts) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, domain.ErrProductNotFound
}

func (s *stubProducts) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProducts) CheckStock(ctx context.Context, id uuid.UUID, quantity int) (service.StockCheck, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return service.StockCheck{}, err
	}
	return service.StockCheck{HasStock: p.Stock.IsAvailable(quantity), AvailableQuantity: p.Stock.Quantity()}, nil
}

func (s *stubProducts) RestockProduct(ctx context.Context, id uuid.UUID, quantity int) (*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.IncrementStock(quantity); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *stubProducts) UpdateProduct(ctx context.Context, id uuid.UUID, in service.UpdateProductInput) (*domain.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if err := p.UpdateName(*in.Name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Stub CartService returning a canned result or error
type stubCarts struct {
	cart    *domain.Cart
	err     error
	lastAdd service.AddItemCommand
	lastUpd service.UpdateItemQuantityCommand
}

func (s *stubCarts) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return s.cart, s.err
}

func (s *stubCarts) AddItem(ctx context.Context, cmd service.AddItemCommand) (*domain.Cart, error) {
	s.lastAdd = cmd
	return s.cart, s.err
}

func (s *stubCarts) UpdateItemQuantity(ctx context.Context, cmd service.UpdateItemQuantityCommand) (*domain.Cart, error) {
	s.lastUpd = cmd
	return s.cart, s.err
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func productRouter(t *testing.T) (*gin.Engine, *stubProducts, *domain.Product) {
	t.Helper()
	stock, _ := domain.NewStock(10)
	widget, err := domain.NewProduct("Widget", domain.MustMoney("10.00", "USD"), stock)
	if err != nil {
		t.Fatal(err)
	}
	svc := &stubProducts{products: map[uuid.UUID]*domain.Product{widget.ID: widget}}
	r := gin.New()
	NewProductHandler(svc).Register(r)
	return r, svc, widget
}

func TestProductHandler_GetProduct(t *testing.T) {
	r, _, widget := productRouter(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/products/" + widget.ID.String(), http.StatusOK},
		{"not found", "/products/" + uuid.NewString(), http.StatusNotFound},
		{"bad id", "/products/42", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, nil)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	w := do(r, http.MethodGet, "/products/"+widget.ID.String(), nil)
	var resp models.ProductResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "Widget" || resp.Currency != "USD" || resp.StockQuantity != 10 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestProductHandler_CreateProduct(t *testing.T) {
	r, _, _ := productRouter(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"valid", map[string]any{"name": "Gadget", "amount": "5.50", "initialStock": 3}, http.StatusCreated},
		{"missing name", map[string]any{"amount": "5.50", "initialStock": 3}, http.StatusBadRequest},
		{"negative stock", map[string]any{"name": "Gadget", "amount": "5.50", "initialStock": -1}, http.StatusBadRequest},
		{"negative price", map[string]any{"name": "Gadget", "amount": "-1", "initialStock": 1}, http.StatusBadRequest},
		{"bad currency", map[string]any{"name": "Gadget", "amount": "1", "currency": "dollars", "initialStock": 1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/products", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestProductHandler_CheckStock(t *testing.T) {
	r, _, widget := productRouter(t)

	w := do(r, http.MethodGet, fmt.Sprintf("/products/%s/stock?quantity=11", widget.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp models.StockCheckResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.HasStock || resp.AvailableQuantity != 10 || resp.RequiredQuantity != 11 {
		t.Errorf("unexpected response: %+v", resp)
	}

	w = do(r, http.MethodGet, fmt.Sprintf("/products/%s/stock?quantity=abc", widget.ID), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestProductHandler_Restock(t *testing.T) {
	r, svc, widget := productRouter(t)
	path := fmt.Sprintf("/products/%s/restock", widget.ID)

	w := do(r, http.MethodPost, path, map[string]int{"quantity": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if widget.Stock.Quantity() != 15 {
		t.Errorf("expected stock 15, got %d", widget.Stock.Quantity())
	}

	w = do(r, http.MethodPost, path, map[string]int{"quantity": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero quantity, got %d", w.Code)
	}

	svc.err = fmt.Errorf("restock: %w", domain.ErrVersionConflict)
	w = do(r, http.MethodPost, path, map[string]int{"quantity": 1})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on conflict, got %d", w.Code)
	}
}

func TestProductHandler_UpdateProduct(t *testing.T) {
	r, _, widget := productRouter(t)
	path := "/products/" + widget.ID.String()

	w := do(r, http.MethodPatch, path, map[string]string{"name": "Widget Pro"})
	if w.Code != http.StatusOK || widget.Name != "Widget Pro" {
		t.Errorf("expected rename, got %d %s", w.Code, widget.Name)
	}

	w = do(r, http.MethodPatch, path, map[string]string{"name": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", w.Code)
	}
}

func cartRouter(svc *stubCarts) *gin.Engine {
	r := gin.New()
	NewCartHandler(svc).Register(r)
	return r
}

func TestCartHandler_AddItem(t *testing.T) {
	userID, productID := uuid.New(), uuid.New()
	cart := domain.NewCart(userID)
	cart.AddItem(productID, "Widget", domain.MustMoney("10.00", "USD"), 3)
	svc := &stubCarts{cart: cart}
	r := cartRouter(svc)

	w := do(r, http.MethodPost, "/carts/"+userID.String()+"/items", map[string]any{"productId": productID, "quantity": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastAdd.UserID != userID || svc.lastAdd.ProductID != productID || svc.lastAdd.Quantity != 3 {
		t.Errorf("unexpected command: %+v", svc.lastAdd)
	}

	var resp models.CartResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != "30.00" || len(resp.Items) != 1 || resp.Items[0].Subtotal != "30.00" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCartHandler_ErrorMapping(t *testing.T) {
	userID := uuid.New()
	path := "/carts/" + userID.String() + "/items"
	body := map[string]any{"productId": uuid.New(), "quantity": 1}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient stock", domain.ErrInsufficientStock, http.StatusBadRequest},
		{"product not found", domain.ErrProductNotFound, http.StatusNotFound},
		{"conflict", domain.ErrVersionConflict, http.StatusConflict},
		{"cart exists", domain.ErrCartExists, http.StatusConflict},
		{"timeout", client.ErrTimeout, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cartRouter(&stubCarts{err: tt.err})
			w := do(r, http.MethodPost, path, body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestCartHandler_Validation(t *testing.T) {
	r := cartRouter(&stubCarts{cart: domain.NewCart(uuid.New())})
	userID := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad user id", http.MethodGet, "/carts/abc", nil},
		{"zero quantity", http.MethodPost, "/carts/" + userID + "/items", map[string]any{"productId": uuid.New(), "quantity": 0}},
		{"missing product", http.MethodPost, "/carts/" + userID + "/items", map[string]any{"quantity": 1}},
		{"missing quantity", http.MethodPatch, "/carts/" + userID + "/items/" + uuid.NewString(), map[string]any{}},
		{"bad product id", http.MethodPatch, "/carts/" + userID + "/items/xyz", map[string]any{"quantity": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCartHandler_UpdateItemQuantity(t *testing.T) {
	userID, productID := uuid.New(), uuid.New()
	svc := &stubCarts{cart: domain.NewCart(userID)}
	r := cartRouter(svc)

	w := do(r, http.MethodPatch, fmt.Sprintf("/carts/%s/items/%s", userID, productID), map[string]int{"quantity": 4})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.lastUpd.NewQuantity != 4 || svc.lastUpd.ProductID != productID {
		t.Errorf("unexpected command: %+v", svc.lastUpd)
	}
}
