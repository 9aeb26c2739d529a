package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"wbtrack-rest-api/internal/service"
	"wbtrack-rest-api/pkg/apierror"
	"wbtrack-rest-api/pkg/response"
)

// ProductHandler handles tracked product HTTP requests.
type ProductHandler struct {
	products *service.ProductService
	validate *validator.Validate
}

// NewProductHandler creates a new product handler.
func NewProductHandler(products *service.ProductService) *ProductHandler {
	return &ProductHandler{
		products: products,
		validate: newValidator(),
	}
}

// AddProductRequest is the body of POST /add-product.
// Artikul may be sent as a JSON number or a numeric string.
type AddProductRequest struct {
	Artikul json.Number `json:"artikul" validate:"required"`
}

// GetProductDetails handles GET /third-party/wildberries/get-product-details/{artikul}
func (h *ProductHandler) GetProductDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.products.Details(r.Context(), chi.URLParam(r, "artikul"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, details)
}

// AddProduct handles POST /third-party/wildberries/add-product
func (h *ProductHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req AddProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(req); err != nil {
		if details, ok := validationDetails(err); ok {
			response.Error(w, apierror.ValidationError("Validation failed", details...))
			return
		}
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}

	tracked, err := h.products.Add(r.Context(), req.Artikul.String())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Created(w, tracked)
}

// GetHistory handles GET /third-party/wildberries/get-lasted-products-by-artikul/{artikul}?count=N
func (h *ProductHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", service.DefaultHistoryCount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	snapshots, err := h.products.History(r.Context(), chi.URLParam(r, "artikul"), count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, snapshots)
}

// GetLatest handles GET /third-party/wildberries/get-last-dataproduct-by-artikul/{artikul}
func (h *ProductHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.products.Latest(r.Context(), chi.URLParam(r, "artikul"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, snapshot)
}

// GetPriceDynamics handles GET /third-party/wildberries/get-price-dynamics/{artikul}?count=N
func (h *ProductHandler) GetPriceDynamics(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", service.DefaultHistoryCount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dynamics, err := h.products.Dynamics(r.Context(), chi.URLParam(r, "artikul"), count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, dynamics)
}

// ListProducts handles GET /third-party/wildberries/products?page=&per_page=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page", service.DefaultPageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	products, total, err := h.products.List(r.Context(), page, perPage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, products, page, perPage, total)
}
