// Package api exposes the booking, quote, payment and quota operations over HTTP.
package api

import (
	"context"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/identity"
	"ms-booking/internal/ledger"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/receipt"
	"ms-booking/internal/sse"
	"ms-booking/internal/subscription"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	Bookings *booking.Service
	Ledger   *ledger.Ledger
	Quota    *subscription.Enforcer
	Vendors  *identity.Resolver
	QR       *receipt.QRGenerator
	PDF      *receipt.PDFRenderer
	Gateway  *payment.Gateway
	Stream   *sse.Broker
	Verifier auth.Verifier
	Webhook  http.Handler
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	Health   func(ctx context.Context) error
}

type Handler struct {
	bookings *booking.Service
	ledger   *ledger.Ledger
	quota    *subscription.Enforcer
	vendors  *identity.Resolver
	qr       *receipt.QRGenerator
	pdf      *receipt.PDFRenderer
	gateway  *payment.Gateway
	stream   *sse.Broker
	metrics  *metrics.Metrics
	logger   *logger.Logger
	health   func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	h := &Handler{
		bookings: d.Bookings,
		ledger:   d.Ledger,
		quota:    d.Quota,
		vendors:  d.Vendors,
		qr:       d.QR,
		pdf:      d.PDF,
		gateway:  d.Gateway,
		stream:   d.Stream,
		metrics:  d.Metrics,
		logger:   d.Logger,
		health:   d.Health,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/health", h.Health)
	r.Handle("/metrics", d.Metrics.Handler())
	if d.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/stripe", d.Webhook)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Verifier, d.Logger))

		r.Post("/bookings", h.CreateBooking)
		r.Route("/bookings/{id}", func(r chi.Router) {
			r.Get("/", h.GetBooking)
			r.Patch("/status", h.UpdateStatus)
			r.Get("/timeline", h.Timeline)
			if d.Stream != nil {
				r.Get("/events", h.StreamEvents)
			}

			r.Post("/quote", h.SendQuote)
			r.Get("/quote", h.GetQuote)
			r.Get("/quotes", h.ListQuotes)
			r.Post("/accept-quote", h.AcceptQuote)
			r.Post("/reject-quote", h.RejectQuote)

			r.Get("/payments", h.ListPayments)
			r.With(auth.RequireRole(models.ActorSystem)).Post("/payments", h.RecordPayment)
			r.Get("/receipts", h.ListReceipts)
			if d.Gateway != nil {
				r.Post("/payment-intents", h.CreatePaymentIntent)
			}
		})
		r.Get("/receipts/{number}", h.GetReceipt)
		r.Get("/receipts/{number}/qr", h.ReceiptQR)
		r.Get("/receipts/{number}/pdf", h.ReceiptPDF)

		r.Get("/vendors/{ref}/quota", h.Quota)
		r.Post("/vendors/{ref}/services", h.CreateService)
		r.With(auth.RequireRole()).Put("/vendors/{ref}/subscription", h.ActivateSubscription)
	})
	return r
}

// observe records request latency and logs each request.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		h.metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
		h.logger.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), elapsed.String())
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse("unhealthy", "UNHEALTHY", err.Error()))
			return
		}
	}
	writeJSON(w, http.StatusOK, SuccessResponse("ok", nil))
}

// fail writes err as an APIResponse. Coded errors keep their status; anything
// else is logged and reported as 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if e := apperr.From(err); e != nil {
		writeJSON(w, e.StatusCode, ErrorResponse(err.Error(), string(e.Code), e.Message))
		return
	}
	h.logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse("internal server error", "INTERNAL", ""))
}

func principal(r *http.Request) models.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
