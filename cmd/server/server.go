// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/api/bookings"
	"github.com/courtbook/courtbook/internal/config"
)

func newServer(cfg *config.Config) *http.Server {
	router := http.NewServeMux()

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	registerRoutes(router)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Validation endpoints: full generate/conflict/price pipeline, no writes.
	mux.HandleFunc("POST /api/v1/bookings/validate-consecutive", bookings.HandleValidateConsecutive)
	mux.HandleFunc("POST /api/v1/bookings/validate-weekly", bookings.HandleValidateWeekly)

	// Booking lifecycle
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleBatchCreate)
	mux.HandleFunc("GET /api/v1/bookings/hold", bookings.HandleHoldStatus)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.HandleGetBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}/cancel-hold", bookings.HandleCancelHold)
	mux.HandleFunc("PATCH /api/v1/bookings/recurring-group/{groupID}/cancel", bookings.HandleGroupCancel)

	// Payment
	mux.HandleFunc("POST /api/v1/bookings/{id}/payment", bookings.HandleCreatePayment)
	mux.HandleFunc("POST /api/v1/bookings/recurring-group/{groupID}/payment", bookings.HandleGroupPayment)
	mux.HandleFunc("POST /api/v1/payments/events", bookings.HandlePaymentEvent)
}
