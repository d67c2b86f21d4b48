package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/core/service"
)

type HTTPHandler struct {
	products  *service.ProductService
	clocks    *service.ClockService
	placement *service.PlacementService
	limiter   *BuyerLimiter
	logger    *zap.Logger
}

func NewHTTPHandler(
	products *service.ProductService,
	clocks *service.ClockService,
	placement *service.PlacementService,
	limiter *BuyerLimiter,
	logger *zap.Logger,
) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		products:  products,
		clocks:    clocks,
		placement: placement,
		limiter:   limiter,
		logger:    logger,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/products", h.CreateProduct)
		r.Get("/products/{id}", h.GetProduct)
		r.Patch("/products/{id}", h.UpdateProduct)

		r.Route("/clocks", func(r chi.Router) {
			r.Post("/", h.CreateAuctionClock)
			r.Get("/{id}", h.GetAuctionClock)
			r.Delete("/{id}", h.DeleteAuctionClock)
			r.Post("/{id}/status", h.TransitionClockStatus)
			r.Post("/{id}/items", h.AttachProduct)
			r.Delete("/{id}/items/{productID}", h.DetachProduct)
			r.Post("/{id}/viewers", h.JoinClock)
			r.Delete("/{id}/viewers", h.LeaveClock)
			r.Post("/{id}/bids", h.PlaceBid)
		})

		r.Get("/orders/{id}", h.GetOrder)
		r.Patch("/order-lines/{id}", h.CorrectOrderLineQuantity)
	})
	return r
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) || !h.check(w, domain.EntityProduct, &req) {
		return
	}
	p, err := h.products.CreateProduct(r.Context(), req.input())
	h.respond(w, http.StatusCreated, p, err)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, p, err)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ProductID = chi.URLParam(r, "id")
	if !h.check(w, domain.EntityProduct, &req) {
		return
	}
	p, err := h.products.UpdateProduct(r.Context(), req.input())
	h.respond(w, http.StatusOK, p, err)
}

func (h *HTTPHandler) CreateAuctionClock(w http.ResponseWriter, r *http.Request) {
	var req CreateClockRequest
	if !h.decode(w, r, &req) || !h.check(w, domain.EntityClock, &req) {
		return
	}
	c, err := h.clocks.CreateAuctionClock(r.Context(), req.input())
	h.respond(w, http.StatusCreated, c, err)
}

func (h *HTTPHandler) GetAuctionClock(w http.ResponseWriter, r *http.Request) {
	c, err := h.clocks.GetAuctionClock(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, c, err)
}

func (h *HTTPHandler) DeleteAuctionClock(w http.ResponseWriter, r *http.Request) {
	expected, ok := h.expectedVersion(w, r, domain.EntityClock)
	if !ok {
		return
	}
	err := h.clocks.DeleteAuctionClock(r.Context(), chi.URLParam(r, "id"), expected)
	h.respond(w, http.StatusOK, nil, err)
}

func (h *HTTPHandler) TransitionClockStatus(w http.ResponseWriter, r *http.Request) {
	var req TransitionClockRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ClockID = chi.URLParam(r, "id")
	if !h.check(w, domain.EntityClock, &req) {
		return
	}
	c, err := h.clocks.TransitionClockStatus(r.Context(), req.ClockID,
		domain.ClockStatus(req.Status), domain.Version(req.ExpectedVersion))
	h.respond(w, http.StatusOK, c, err)
}

func (h *HTTPHandler) AttachProduct(w http.ResponseWriter, r *http.Request) {
	var req AttachProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ClockID = chi.URLParam(r, "id")
	if !h.check(w, domain.EntityClock, &req) {
		return
	}
	c, err := h.clocks.AttachProduct(r.Context(), req.input())
	h.respond(w, http.StatusOK, c, err)
}

func (h *HTTPHandler) DetachProduct(w http.ResponseWriter, r *http.Request) {
	expected, ok := h.expectedVersion(w, r, domain.EntityClock)
	if !ok {
		return
	}
	c, err := h.clocks.DetachProduct(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"), expected)
	h.respond(w, http.StatusOK, c, err)
}

func (h *HTTPHandler) JoinClock(w http.ResponseWriter, r *http.Request) {
	views, err := h.clocks.JoinClock(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, views, err)
}

func (h *HTTPHandler) LeaveClock(w http.ResponseWriter, r *http.Request) {
	views, err := h.clocks.LeaveClock(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, views, err)
}

func (h *HTTPHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req PlaceBidRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ClockID = chi.URLParam(r, "id")
	if !h.check(w, domain.EntityOrderLine, &req) {
		return
	}
	if !h.limiter.Allow(req.BuyerID) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: ErrorBody{
			Code:    "rate_limited",
			Message: "too many bids, slow down",
		}})
		return
	}
	line, err := h.placement.PlaceBid(r.Context(), req.input())
	h.respond(w, http.StatusCreated, line, err)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.placement.GetOrder(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, o, err)
}

func (h *HTTPHandler) CorrectOrderLineQuantity(w http.ResponseWriter, r *http.Request) {
	var req CorrectOrderLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.OrderLineID = chi.URLParam(r, "id")
	if !h.check(w, domain.EntityOrderLine, &req) {
		return
	}
	line, err := h.placement.CorrectOrderLineQuantity(r.Context(), req.OrderLineID, req.Quantity,
		domain.Version(req.ExpectedVersion))
	h.respond(w, http.StatusOK, line, err)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Code:    "invalid_body",
			Message: "invalid request body",
		}})
		return false
	}
	return true
}

// check runs the struct tag rules once path parameters are in place.
func (h *HTTPHandler) check(w http.ResponseWriter, entity string, req any) bool {
	if err := validateRequest(entity, req); err != nil {
		h.respond(w, 0, nil, err)
		return false
	}
	return true
}

func (h *HTTPHandler) expectedVersion(w http.ResponseWriter, r *http.Request, entity string) (domain.Version, bool) {
	raw := r.URL.Query().Get("expected_version")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		h.respond(w, 0, nil, domain.NewValidationError(entity, "expected_version", "must be a non-negative integer"))
		return 0, false
	}
	return domain.Version(v), true
}

func (h *HTTPHandler) respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		code, body := httpError(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("request failed", zap.Int("status", code), zap.Error(err))
		}
		writeJSON(w, code, ErrorResponse{Error: body})
		return
	}
	writeJSON(w, status, DataResponse{Success: true, Data: data})
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
