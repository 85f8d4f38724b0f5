package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"

	"bims/m/domain"
	"bims/m/internal/inventory"
	"bims/m/internal/order"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db     *sqlx.DB
	secret string
	orders *order.Service
	ledger *inventory.Ledger
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string) *Handler {
	return &Handler{
		db:     db,
		secret: secret,
		orders: order.NewService(db),
		ledger: inventory.NewLedger(db),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Get("/me", h.me)

		pr.Route("/customers", func(r chi.Router) {
			r.Get("/", h.listCustomers)
			r.Post("/", h.createCustomer)
		})

		pr.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{id}", h.getProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
			r.Post("/{id}/restock", h.restockProduct)
			r.Post("/{id}/adjust", h.adjustProduct)
			r.Get("/{id}/history", h.productHistory)
		})

		pr.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.listSuppliers)
			r.Get("/{id}", h.getSupplier)
		})

		pr.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Patch("/{id}/status", h.updateOrderStatus)
		})

		pr.Get("/dashboard", h.dashboard)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers. Token issuance belongs to the auth service;
// this layer only verifies bearer tokens to attribute the acting user.

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an actor token. Used by tooling and tests; the
// API itself never issues tokens.
func GenerateToken(secret string, userID int64, role string, ttl time.Duration) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.UserID <= 0 {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userIDFromContext(r *http.Request) int64 {
	if val := r.Context().Value(ctxUserID); val != nil {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	err := h.db.GetContext(r.Context(), &user,
		`SELECT user_id, username, email, role, created_at FROM users WHERE user_id = ?`,
		userIDFromContext(r))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Customer handlers

type customerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.FirstName) == "" {
		respondError(w, http.StatusBadRequest, "first_name is required")
		return
	}
	var id int64
	err := h.db.QueryRowxContext(r.Context(),
		`INSERT INTO customers (first_name, last_name, email, phone) VALUES (?, ?, ?, ?) RETURNING customer_id`,
		req.FirstName, req.LastName, req.Email, req.Phone).Scan(&id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create customer")
		return
	}
	respondJSON(w, http.StatusCreated, domain.Customer{
		ID: id, FirstName: req.FirstName, LastName: req.LastName,
		Email: req.Email, Phone: req.Phone,
	})
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	var (
		clauses []string
		args    []any
	)
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		like := "%" + search + "%"
		clauses = append(clauses, "(first_name LIKE ? OR last_name LIKE ? OR email LIKE ? OR phone LIKE ?)")
		args = append(args, like, like, like, like)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	page, limit := pagination(r)
	query := `SELECT customer_id, first_name, COALESCE(last_name, '') AS last_name,
                     COALESCE(email, '') AS email, COALESCE(phone, '') AS phone, created_at
              FROM customers` + where + " ORDER BY first_name, last_name LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	customers := []domain.Customer{}
	if err := h.db.SelectContext(r.Context(), &customers, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list customers")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

// Product handlers

const productColumns = `p.product_id, p.sku, p.name, p.description, p.brand, p.category_id, p.supplier_id,
    p.purchase_price, p.selling_price, p.discount_price, p.tax_rate,
    p.stock_quantity, p.reorder_level, p.is_active, p.created_at, p.updated_at`

type productView struct {
	domain.Product
	CategoryName *string `db:"category_name" json:"category_name,omitempty"`
	SupplierName *string `db:"supplier_name" json:"supplier_name,omitempty"`
}

var productSortFields = map[string]bool{
	"name":           true,
	"sku":            true,
	"selling_price":  true,
	"stock_quantity": true,
	"created_at":     true,
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		clauses = []string{"p.is_active = 1"}
		args    []any
	)
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		clauses = append(clauses, "c.name = ?")
		args = append(args, category)
	}
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		like := "%" + search + "%"
		clauses = append(clauses, "(p.name LIKE ? OR p.sku LIKE ? OR p.description LIKE ?)")
		args = append(args, like, like, like)
	}
	where := " WHERE " + strings.Join(clauses, " AND ")

	const from = ` FROM products p
        LEFT JOIN categories c ON c.category_id = p.category_id
        LEFT JOIN suppliers s ON s.supplier_id = p.supplier_id`

	var total int64
	if err := h.db.GetContext(r.Context(), &total, "SELECT COUNT(*)"+from+where, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to count products")
		return
	}

	page, limit := pagination(r)
	sortField := r.URL.Query().Get("sort")
	if !productSortFields[sortField] {
		sortField = "name"
	}
	dir := "ASC"
	if strings.EqualFold(r.URL.Query().Get("dir"), "desc") {
		dir = "DESC"
	}

	query := "SELECT " + productColumns + `, c.name AS category_name, s.company_name AS supplier_name` +
		from + where + " ORDER BY p." + sortField + " " + dir + " LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	products := []productView{}
	if err := h.db.SelectContext(r.Context(), &products, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list products")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":       products,
		"pagination": pageMeta(total, page, limit),
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var product productView
	err = h.db.GetContext(r.Context(), &product,
		"SELECT "+productColumns+`, c.name AS category_name, s.company_name AS supplier_name
         FROM products p
         LEFT JOIN categories c ON c.category_id = p.category_id
         LEFT JOIN suppliers s ON s.supplier_id = p.supplier_id
         WHERE p.product_id = ? AND p.is_active = 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

type productRequest struct {
	SKU           *string  `json:"sku"`
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Brand         *string  `json:"brand"`
	CategoryID    *int64   `json:"category_id"`
	SupplierID    *int64   `json:"supplier_id"`
	PurchasePrice *float64 `json:"purchase_price"`
	SellingPrice  *float64 `json:"selling_price"`
	DiscountPrice *float64 `json:"discount_price"`
	TaxRate       *float64 `json:"tax_rate"`
	StockQuantity *int64   `json:"stock_quantity"`
	ReorderLevel  *int64   `json:"reorder_level"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin", "manager", "inventory") {
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SKU == nil || req.Name == nil || req.PurchasePrice == nil || req.SellingPrice == nil {
		respondError(w, http.StatusBadRequest, "sku, name, purchase_price and selling_price are required")
		return
	}
	initialStock := int64(0)
	if req.StockQuantity != nil {
		initialStock = *req.StockQuantity
	}
	if initialStock < 0 {
		respondError(w, http.StatusBadRequest, "stock_quantity cannot be negative")
		return
	}
	taxRate := 0.0
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	reorderLevel := int64(5)
	if req.ReorderLevel != nil {
		reorderLevel = *req.ReorderLevel
	}
	userID := userIDFromContext(r)

	tx, err := h.db.BeginTxx(r.Context(), nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to start product creation")
		return
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(r.Context(),
		`INSERT INTO products (sku, name, description, brand, category_id, supplier_id,
             purchase_price, selling_price, discount_price, tax_rate, stock_quantity, reorder_level)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		*req.SKU, *req.Name, strOrEmpty(req.Description), strOrEmpty(req.Brand),
		req.CategoryID, req.SupplierID, *req.PurchasePrice, *req.SellingPrice,
		req.DiscountPrice, taxRate, initialStock, reorderLevel)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			respondError(w, http.StatusConflict, "sku already exists")
		} else {
			respondError(w, http.StatusInternalServerError, "unable to create product")
		}
		return
	}
	productID, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read product id")
		return
	}

	// Initial stock is still a stock change and belongs in the ledger.
	entry := domain.InventoryLogEntry{
		ProductID:      productID,
		UserID:         userID,
		QuantityChange: initialStock,
		Type:           domain.LogAdjustment,
		Notes:          "Initial stock when creating product",
	}
	if err := inventory.AppendTx(r.Context(), tx, entry); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to log initial stock")
		return
	}

	var product domain.Product
	if err := tx.GetContext(r.Context(), &product,
		`SELECT product_id, sku, name, description, brand, category_id, supplier_id,
                purchase_price, selling_price, discount_price, tax_rate,
                stock_quantity, reorder_level, is_active, created_at, updated_at
         FROM products WHERE product_id = ?`, productID); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load created product")
		return
	}
	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to complete product creation")
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin", "manager", "inventory") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var exists bool
	if err := h.db.GetContext(r.Context(), &exists,
		`SELECT EXISTS(SELECT 1 FROM products WHERE product_id = ? AND is_active = 1)`, id); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load product")
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}

	var (
		sets []string
		args []any
	)
	addSet := func(column string, val any) {
		sets = append(sets, column+" = ?")
		args = append(args, val)
	}
	// SKU is immutable once assigned; it is deliberately absent here.
	if req.Name != nil {
		addSet("name", *req.Name)
	}
	if req.Description != nil {
		addSet("description", *req.Description)
	}
	if req.Brand != nil {
		addSet("brand", *req.Brand)
	}
	if req.CategoryID != nil {
		addSet("category_id", *req.CategoryID)
	}
	if req.SupplierID != nil {
		addSet("supplier_id", *req.SupplierID)
	}
	if req.PurchasePrice != nil {
		addSet("purchase_price", *req.PurchasePrice)
	}
	if req.SellingPrice != nil {
		addSet("selling_price", *req.SellingPrice)
	}
	if req.DiscountPrice != nil {
		addSet("discount_price", *req.DiscountPrice)
	}
	if req.TaxRate != nil {
		addSet("tax_rate", *req.TaxRate)
	}
	if req.ReorderLevel != nil {
		addSet("reorder_level", *req.ReorderLevel)
	}

	if len(sets) == 0 && req.StockQuantity == nil {
		respondError(w, http.StatusBadRequest, "no valid fields to update")
		return
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		args = append(args, id)
		if _, err := h.db.ExecContext(r.Context(),
			"UPDATE products SET "+strings.Join(sets, ", ")+" WHERE product_id = ?", args...); err != nil {
			respondError(w, http.StatusInternalServerError, "unable to update product")
			return
		}
	}

	// Stock changes go through the ledger so the log and the cached
	// quantity move together.
	if req.StockQuantity != nil {
		userID := userIDFromContext(r)
		if _, err := h.ledger.Adjust(r.Context(), userID, id, *req.StockQuantity, "Stock adjustment via API"); err != nil {
			respondCoreError(w, err)
			return
		}
	}

	var product domain.Product
	if err := h.db.GetContext(r.Context(), &product,
		`SELECT product_id, sku, name, description, brand, category_id, supplier_id,
                purchase_price, selling_price, discount_price, tax_rate,
                stock_quantity, reorder_level, is_active, created_at, updated_at
         FROM products WHERE product_id = ?`, id); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load updated product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin", "manager") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	res, err := h.db.ExecContext(r.Context(),
		`UPDATE products SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE product_id = ? AND is_active = 1`, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to delete product")
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

type stockChangeRequest struct {
	Quantity int64  `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

func (h *Handler) restockProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin", "manager", "inventory") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req stockChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	notes := req.Notes
	if notes == "" {
		notes = "Restock via API"
	}
	stock, err := h.ledger.Restock(r.Context(), userIDFromContext(r), id, req.Quantity, notes)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock_quantity": stock})
}

func (h *Handler) adjustProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin", "manager", "inventory") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req stockChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	notes := req.Notes
	if notes == "" {
		notes = "Stock adjustment via API"
	}
	delta, err := h.ledger.Adjust(r.Context(), userIDFromContext(r), id, req.Quantity, notes)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock_quantity": req.Quantity, "change": delta})
}

func (h *Handler) productHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	entries, err := h.ledger.History(r.Context(), id)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Supplier handlers

var supplierSortFields = map[string]bool{
	"company_name":   true,
	"contact_person": true,
	"country":        true,
	"created_at":     true,
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	var (
		clauses []string
		args    []any
	)
	if status := r.URL.Query().Get("status"); status == "active" || status == "inactive" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		like := "%" + search + "%"
		clauses = append(clauses, "(company_name LIKE ? OR contact_person LIKE ? OR email LIKE ?)")
		args = append(args, like, like, like)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := h.db.GetContext(r.Context(), &total, "SELECT COUNT(*) FROM suppliers"+where, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to count suppliers")
		return
	}

	page, limit := pagination(r)
	sortField := r.URL.Query().Get("sort")
	if !supplierSortFields[sortField] {
		sortField = "company_name"
	}
	dir := "ASC"
	if strings.EqualFold(r.URL.Query().Get("dir"), "desc") {
		dir = "DESC"
	}

	query := `SELECT supplier_id, company_name, COALESCE(contact_person, '') AS contact_person,
                     COALESCE(email, '') AS email, COALESCE(phone, '') AS phone,
                     COALESCE(address, '') AS address, COALESCE(country, '') AS country, status, created_at
              FROM suppliers` + where + " ORDER BY " + sortField + " " + dir + " LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	suppliers := []domain.Supplier{}
	if err := h.db.SelectContext(r.Context(), &suppliers, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list suppliers")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":       suppliers,
		"pagination": pageMeta(total, page, limit),
	})
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid supplier id")
		return
	}
	var supplier domain.Supplier
	err = h.db.GetContext(r.Context(), &supplier,
		`SELECT supplier_id, company_name, COALESCE(contact_person, '') AS contact_person,
                COALESCE(email, '') AS email, COALESCE(phone, '') AS phone,
                COALESCE(address, '') AS address, COALESCE(country, '') AS country, status, created_at
         FROM suppliers WHERE supplier_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "supplier not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load supplier")
		return
	}
	respondJSON(w, http.StatusOK, supplier)
}

// Order handlers

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := h.orders.Create(r.Context(), userIDFromContext(r), req)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, detail)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	detail, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	customerID, _ := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
	filter := order.ListFilter{
		Status:        r.URL.Query().Get("status"),
		PaymentStatus: r.URL.Query().Get("payment_status"),
		StartDate:     strings.TrimSpace(r.URL.Query().Get("start_date")),
		EndDate:       strings.TrimSpace(r.URL.Query().Get("end_date")),
		CustomerID:    customerID,
		Page:          page,
		Limit:         limit,
		Sort:          r.URL.Query().Get("sort"),
		Desc:          strings.EqualFold(r.URL.Query().Get("dir"), "desc"),
	}
	orders, meta, err := h.orders.List(r.Context(), filter)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": meta})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orders.UpdateStatus(r.Context(), id, payload.Status); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Dashboard

type dashboardSummary struct {
	CompletedOrders int64    `db:"completed_orders" json:"completed_orders"`
	PendingOrders   int64    `db:"pending_orders" json:"pending_orders"`
	TotalProducts   int64    `db:"total_products" json:"total_products"`
	LowStockCount   int64    `db:"low_stock_count" json:"low_stock_count"`
	TotalSales      *float64 `db:"total_sales" json:"total_sales"`
}

type salesChartPoint struct {
	Date       string  `db:"date" json:"date"`
	OrderCount int64   `db:"order_count" json:"order_count"`
	TotalSales float64 `db:"total_sales" json:"total_sales"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	var summary dashboardSummary
	err := h.db.GetContext(r.Context(), &summary, `
        SELECT
            (SELECT COUNT(*) FROM orders WHERE order_status = 'completed') AS completed_orders,
            (SELECT COUNT(*) FROM orders WHERE order_status = 'pending') AS pending_orders,
            (SELECT COUNT(*) FROM products WHERE is_active = 1) AS total_products,
            (SELECT COUNT(*) FROM products WHERE is_active = 1 AND stock_quantity <= reorder_level) AS low_stock_count,
            (SELECT SUM(total_amount) FROM orders WHERE order_status = 'completed') AS total_sales`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load dashboard summary")
		return
	}

	recent, _, err := h.orders.List(r.Context(), order.ListFilter{Limit: 5, Sort: "order_date", Desc: true})
	if err != nil {
		respondCoreError(w, err)
		return
	}

	lowStock, err := h.ledger.LowStock(r.Context(), 10)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	chart := []salesChartPoint{}
	err = h.db.SelectContext(r.Context(), &chart, `
        SELECT DATE(order_date) AS date, COUNT(*) AS order_count, SUM(total_amount) AS total_sales
        FROM orders
        WHERE order_date >= DATE('now', '-7 day') AND order_status = 'completed'
        GROUP BY DATE(order_date)
        ORDER BY date ASC`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load sales chart")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"summary":            summary,
		"recent_orders":      recent,
		"low_stock_products": lowStock,
		"sales_chart":        chart,
	})
}

// Helpers

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func pageMeta(total int64, page, limit int) map[string]any {
	pages := (total + int64(limit) - 1) / int64(limit)
	return map[string]any{"total": total, "page": page, "limit": limit, "pages": pages}
}

func strOrEmpty(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}

// respondCoreError maps the core error taxonomy onto HTTP statuses.
func respondCoreError(w http.ResponseWriter, err error) {
	var (
		notFound     *domain.ProductNotFoundError
		insufficient *domain.InsufficientStockError
		validation   *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrEmptyOrder):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &insufficient):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
