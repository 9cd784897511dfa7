package book

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"librarycatalog/internal/httpx"

	"github.com/go-chi/chi/v5"
)

const statusAll = "ALL"

type HTTPHandler struct {
	service *Service
	logger  *slog.Logger
}

func NewHTTPHandler(service *Service, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{service: service, logger: logger}
}

// Routes registers the book endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/books", h.List)
	r.Post("/books", h.Create)
	r.Get("/books/{isbn}", h.GetByISBN)
	r.Get("/books/{isbn}/enriched", h.GetEnriched)
}

// List handles GET /books. Without a status filter only AVAILABLE books are
// returned; status=ALL returns everything.
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("status"))

	var (
		books []Book
		err   error
	)
	switch {
	case filter == "":
		books, err = h.service.ListAvailable(r.Context())
	case strings.EqualFold(filter, statusAll):
		books, err = h.service.ListAll(r.Context())
	default:
		status, perr := ParseStatus(filter)
		if perr != nil {
			httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeValidation, "Invalid status filter", []httpx.ErrorDetail{
				{Field: "status", Message: "status must be one of " + joinStatuses() + " or " + statusAll},
			})
			return
		}
		books, err = h.service.ListByStatus(r.Context(), status)
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	if books == nil {
		books = []Book{}
	}
	httpx.JSONSuccess(w, r, books, map[string]interface{}{"count": len(books)})
}

// GetByISBN handles GET /books/{isbn}
func (h *HTTPHandler) GetByISBN(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetByISBN(r.Context(), r.PathValue("isbn"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "ISBN not found", nil)
			return
		}
		h.internalError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, book, nil)
}

// Create handles POST /books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, httpx.CodePayloadTooLarge, "Request body too large", nil)
			return
		}
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeInvalidJSON, "Request body must be a JSON book", nil)
		return
	}

	book, err := h.service.Create(r.Context(), req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeValidation, "Invalid book", toErrorDetails(verr))
		case errors.Is(err, ErrConflict):
			httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeConflict, "A book with this ISBN already exists", nil)
		default:
			h.internalError(w, r, err)
		}
		return
	}
	httpx.JSONCreated(w, r, book)
}

// GetEnriched handles GET /books/{isbn}/enriched. Only an unknown ISBN is
// reported as such; every other failure, an unavailable metadata source
// included, is a plain 500.
func (h *HTTPHandler) GetEnriched(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Enrich(r.Context(), r.PathValue("isbn"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "ISBN not found", nil)
			return
		}
		h.internalError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, book, nil)
}

func (h *HTTPHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", httpx.RequestIDFrom(r),
		"error", err,
	)
	httpx.JSONError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "Internal server error", nil)
}

func toErrorDetails(verr *ValidationError) []httpx.ErrorDetail {
	details := make([]httpx.ErrorDetail, len(verr.Fields))
	for i, f := range verr.Fields {
		details[i] = httpx.ErrorDetail{Field: f.Field, Message: f.Message}
	}
	return details
}
