// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/booking/conflict"
	"github.com/courtbook/courtbook/internal/booking/hold"
	"github.com/courtbook/courtbook/internal/booking/pricing"
	"github.com/courtbook/courtbook/internal/booking/reconcile"
	"github.com/courtbook/courtbook/internal/booking/schedule"
	appdb "github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/email"
	"github.com/courtbook/courtbook/internal/notify"
)

const bookingsQueryTimeout = 5 * time.Second

// Config carries the booking-flow tunables resolved at startup.
type Config struct {
	HoldTTL         time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	PhoneRegion     string
	CheckoutBaseURL string
}

var (
	database *appdb.DB
	hub      *notify.Hub
	mailer   *email.SESClient
	handlers Config
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
// The mailer may be nil; email then degrades to a no-op.
func InitHandlers(db *appdb.DB, h *notify.Hub, m *email.SESClient, cfg Config) {
	if db == nil || h == nil {
		return
	}
	initOnce.Do(func() {
		database = db
		hub = h
		mailer = m
		handlers = cfg
		if handlers.HoldTTL <= 0 {
			handlers.HoldTTL = hold.DefaultTTL
		}
		if handlers.PollInterval <= 0 {
			handlers.PollInterval = reconcile.DefaultPollInterval
		}
		if handlers.PollMaxAttempts <= 0 {
			handlers.PollMaxAttempts = reconcile.DefaultMaxAttempts
		}
		if handlers.PhoneRegion == "" {
			handlers.PhoneRegion = "US"
		}
	})
}

func loadDB() *appdb.DB {
	return database
}

// --- request and response shapes ---

type resolutionDTO struct {
	Action       string `json:"action"`
	CourtID      int64  `json:"court_id,omitempty"`
	NewStartTime string `json:"new_start_time,omitempty"`
	NewEndTime   string `json:"new_end_time,omitempty"`
}

type discountDTO struct {
	Rate   float64 `json:"rate,omitempty"`
	Amount int64   `json:"amount,omitempty"`
}

type validateConsecutiveRequest struct {
	VenueID     int64                    `json:"venue_id"`
	CourtID     int64                    `json:"court_id"`
	StartDate   string                   `json:"start_date"`
	EndDate     string                   `json:"end_date"`
	StartTime   string                   `json:"start_time"`
	EndTime     string                   `json:"end_time"`
	Resolutions map[string]resolutionDTO `json:"resolutions,omitempty"`
	Discount    *discountDTO             `json:"discount,omitempty"`
}

type validateWeeklyRequest struct {
	VenueID       int64                    `json:"venue_id"`
	CourtID       int64                    `json:"court_id"`
	StartDate     string                   `json:"start_date"`
	Weekdays      []int                    `json:"weekdays"`
	NumberOfWeeks int                      `json:"number_of_weeks"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Resolutions   map[string]resolutionDTO `json:"resolutions,omitempty"`
	Discount      *discountDTO             `json:"discount,omitempty"`
}

type createBookingRequest struct {
	VenueID       int64                    `json:"venue_id"`
	CourtID       int64                    `json:"court_id"`
	BookingType   string                   `json:"booking_type"`
	StartDate     string                   `json:"start_date"`
	EndDate       string                   `json:"end_date,omitempty"`
	Weekdays      []int                    `json:"weekdays,omitempty"`
	NumberOfWeeks int                      `json:"number_of_weeks,omitempty"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Resolutions   map[string]resolutionDTO `json:"resolutions,omitempty"`
	Discount      *discountDTO             `json:"discount,omitempty"`
	CustomerName  string                   `json:"customer_name"`
	CustomerEmail string                   `json:"customer_email"`
	CustomerPhone string                   `json:"customer_phone,omitempty"`
}

type conflictDTO struct {
	Date       string  `json:"date"`
	BookingIDs []int64 `json:"booking_ids"`
}

type validationResponse struct {
	Valid           bool             `json:"valid"`
	Dates           []string         `json:"dates"`
	SkippedDates    []string         `json:"skipped_dates,omitempty"`
	Conflicts       []conflictDTO    `json:"conflicts,omitempty"`
	UnresolvedDates []string         `json:"unresolved_dates,omitempty"`
	Summary         *pricing.Summary `json:"summary,omitempty"`
}

type holdDTO struct {
	ID               string `json:"id"`
	GroupID          string `json:"group_id"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expires_at"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

type createBookingResponse struct {
	GroupID      string          `json:"group_id"`
	BookingIDs   []int64         `json:"booking_ids"`
	SkippedDates []string        `json:"skipped_dates,omitempty"`
	Hold         holdDTO         `json:"hold"`
	Summary      pricing.Summary `json:"summary"`
}

type bookingDTO struct {
	ID                 int64  `json:"id"`
	VenueID            int64  `json:"venue_id"`
	CourtID            int64  `json:"court_id"`
	GroupID            string `json:"group_id"`
	BookingDate        string `json:"booking_date"`
	StartsAt           string `json:"starts_at"`
	EndsAt             string `json:"ends_at"`
	Status             string `json:"status"`
	PaymentStatus      string `json:"payment_status"`
	BookingAmount      int64  `json:"booking_amount"`
	AmenitiesFee       int64  `json:"amenities_fee"`
	PlatformFee        int64  `json:"platform_fee"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

// --- parse helpers ---

func parseDateField(raw, field string) (time.Time, error) {
	date, err := schedule.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apiutil.FieldError{Field: field, Reason: "must be a date in YYYY-MM-DD format"}
	}
	return date, nil
}

func parseTimeField(raw, field string) (schedule.TimeOfDay, error) {
	t, err := schedule.ParseTimeOfDay(strings.TrimSpace(raw))
	if err != nil {
		return 0, apiutil.FieldError{Field: field, Reason: "must be a time of day such as 14:00"}
	}
	return t, nil
}

func parseWeekdays(raw []int) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(raw))
	for _, day := range raw {
		if day < 0 || day > 6 {
			return nil, apiutil.FieldError{Field: "weekdays", Reason: "must contain values 0 (Sunday) through 6 (Saturday)"}
		}
		days = append(days, time.Weekday(day))
	}
	return days, nil
}

func parseResolutions(raw map[string]resolutionDTO) (map[string]conflict.Resolution, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	resolutions := make(map[string]conflict.Resolution, len(raw))
	for key, dto := range raw {
		date, err := schedule.ParseDate(key)
		if err != nil {
			return nil, apiutil.FieldError{Field: "resolutions", Reason: "keys must be dates in YYYY-MM-DD format"}
		}
		resolution := conflict.Resolution{
			Action:  conflict.Action(dto.Action),
			CourtID: dto.CourtID,
		}
		if dto.NewStartTime != "" {
			start, err := parseTimeField(dto.NewStartTime, "resolutions.new_start_time")
			if err != nil {
				return nil, err
			}
			resolution.NewStart = start
		}
		if dto.NewEndTime != "" {
			end, err := parseTimeField(dto.NewEndTime, "resolutions.new_end_time")
			if err != nil {
				return nil, err
			}
			resolution.NewEnd = end
		}
		resolutions[schedule.DateKey(date)] = resolution
	}
	return resolutions, nil
}

func parseDiscount(dto *discountDTO) pricing.Discount {
	if dto == nil {
		return pricing.Discount{}
	}
	return pricing.Discount{Rate: dto.Rate, Amount: dto.Amount}
}

func dateKeys(dates []time.Time) []string {
	keys := make([]string, 0, len(dates))
	for _, date := range dates {
		keys = append(keys, schedule.DateKey(date))
	}
	return keys
}

func entryKeys(entries []schedule.DateEntry) []string {
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, schedule.DateKey(entry.Date))
	}
	return keys
}

func conflictsToDTO(conflicts []conflict.Conflict) []conflictDTO {
	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictDTO{Date: schedule.DateKey(c.Date), BookingIDs: c.BookingIDs})
	}
	return out
}

func bookingToDTO(b appdb.Booking) bookingDTO {
	return bookingDTO{
		ID:                 b.ID,
		VenueID:            b.VenueID,
		CourtID:            b.CourtID,
		GroupID:            b.GroupID,
		BookingDate:        b.BookingDate,
		StartsAt:           b.StartsAt,
		EndsAt:             b.EndsAt,
		Status:             b.Status,
		PaymentStatus:      b.PaymentStatus,
		BookingAmount:      b.BookingAmount,
		AmenitiesFee:       b.AmenitiesFee,
		PlatformFee:        b.PlatformFee,
		CancellationReason: b.CancellationReason,
	}
}

// writeError maps engine errors onto HTTP statuses with a JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErr apiutil.FieldError
	var inputErr schedule.InputError
	var handlerErr apiutil.HandlerError

	switch {
	case errors.As(err, &fieldErr):
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": fieldErr.Error(), "field": fieldErr.Field,
		})
	case errors.As(err, &inputErr):
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": inputErr.Error(), "field": inputErr.Field,
		})
	case errors.Is(err, schedule.ErrNoOperatingHours):
		apiutil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, sql.ErrNoRows):
		apiutil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &handlerErr):
		log.Ctx(r.Context()).Error().Err(handlerErr.Err).Msg(handlerErr.Message)
		apiutil.WriteJSON(w, handlerErr.Status, map[string]string{"error": handlerErr.Message})
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Booking request failed")
		apiutil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// --- validation endpoints ---

// POST /api/v1/bookings/validate-consecutive
func HandleValidateConsecutive(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	db := loadDB()
	if db == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req validateConsecutiveRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	genReq, err := buildConsecutiveRequest(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cfg, err := loadVenueConfig(ctx, db.Queries, req.VenueID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, skipped, err := schedule.GenerateConsecutive(genReq, cfg.Hours)
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondValidation(ctx, w, r, db, cfg, req.CourtID, entries, skipped, req.Resolutions, req.Discount)
}

// POST /api/v1/bookings/validate-weekly
func HandleValidateWeekly(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	db := loadDB()
	if db == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req validateWeeklyRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	genReq, err := buildWeeklyRequest(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cfg, err := loadVenueConfig(ctx, db.Queries, req.VenueID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := schedule.GenerateWeekly(genReq, cfg.Hours)
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondValidation(ctx, w, r, db, cfg, req.CourtID, entries, nil, req.Resolutions, req.Discount)
}

func buildConsecutiveRequest(req validateConsecutiveRequest) (schedule.ConsecutiveRequest, error) {
	if req.VenueID <= 0 {
		return schedule.ConsecutiveRequest{}, apiutil.FieldError{Field: "venue_id", Reason: "must be greater than 0"}
	}
	if req.CourtID <= 0 {
		return schedule.ConsecutiveRequest{}, apiutil.FieldError{Field: "court_id", Reason: "must be greater than 0"}
	}
	startDate, err := parseDateField(req.StartDate, "start_date")
	if err != nil {
		return schedule.ConsecutiveRequest{}, err
	}
	endDate, err := parseDateField(req.EndDate, "end_date")
	if err != nil {
		return schedule.ConsecutiveRequest{}, err
	}
	startTime, err := parseTimeField(req.StartTime, "start_time")
	if err != nil {
		return schedule.ConsecutiveRequest{}, err
	}
	endTime, err := parseTimeField(req.EndTime, "end_time")
	if err != nil {
		return schedule.ConsecutiveRequest{}, err
	}
	return schedule.ConsecutiveRequest{
		VenueID:   req.VenueID,
		CourtID:   req.CourtID,
		StartDate: startDate,
		EndDate:   endDate,
		StartTime: startTime,
		EndTime:   endTime,
	}, nil
}

func buildWeeklyRequest(req validateWeeklyRequest) (schedule.WeeklyRequest, error) {
	if req.VenueID <= 0 {
		return schedule.WeeklyRequest{}, apiutil.FieldError{Field: "venue_id", Reason: "must be greater than 0"}
	}
	if req.CourtID <= 0 {
		return schedule.WeeklyRequest{}, apiutil.FieldError{Field: "court_id", Reason: "must be greater than 0"}
	}
	startDate, err := parseDateField(req.StartDate, "start_date")
	if err != nil {
		return schedule.WeeklyRequest{}, err
	}
	startTime, err := parseTimeField(req.StartTime, "start_time")
	if err != nil {
		return schedule.WeeklyRequest{}, err
	}
	endTime, err := parseTimeField(req.EndTime, "end_time")
	if err != nil {
		return schedule.WeeklyRequest{}, err
	}
	weekdays, err := parseWeekdays(req.Weekdays)
	if err != nil {
		return schedule.WeeklyRequest{}, err
	}
	return schedule.WeeklyRequest{
		VenueID:   req.VenueID,
		CourtID:   req.CourtID,
		StartDate: startDate,
		Weekdays:  weekdays,
		StartTime: startTime,
		EndTime:   endTime,
		Weeks:     req.NumberOfWeeks,
	}, nil
}

// respondValidation runs the shared pipeline and reports the result. An
// unresolved conflict is a valid=false response here, not an error: the
// customer is still deciding.
func respondValidation(ctx context.Context, w http.ResponseWriter, r *http.Request, db *appdb.DB, cfg venueConfig, baseCourtID int64, entries []schedule.DateEntry, skipped []time.Time, rawResolutions map[string]resolutionDTO, rawDiscount *discountDTO) {
	resolutions, err := parseResolutions(rawResolutions)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := runValidation(ctx, db.Queries, cfg, baseCourtID, entries, skipped, resolutions, parseDiscount(rawDiscount))
	if err != nil {
		var unresolved conflict.UnresolvedError
		if errors.As(err, &unresolved) {
			apiutil.WriteJSON(w, http.StatusOK, validationResponse{
				Valid:           false,
				Dates:           entryKeys(entries),
				SkippedDates:    dateKeys(skipped),
				Conflicts:       conflictsToDTO(result.Conflicts),
				UnresolvedDates: unresolved.Dates,
			})
			return
		}
		writeError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, validationResponse{
		Valid:        true,
		Dates:        entryKeys(entries),
		SkippedDates: dateKeys(skipped),
		Conflicts:    conflictsToDTO(result.Conflicts),
		Summary:      &result.Summary,
	})
}

// --- booking creation ---

// POST /api/v1/bookings
func HandleBatchCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	db := loadDB()
	if db == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req createBookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		writeError(w, r, apiutil.FieldError{Field: "customer_name", Reason: "is required"})
		return
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		writeError(w, r, apiutil.FieldError{Field: "customer_email", Reason: "is required"})
		return
	}
	phone, err := normalizePhone(req.CustomerPhone, handlers.PhoneRegion)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	cfg, err := loadVenueConfig(ctx, db.Queries, req.VenueID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var entries []schedule.DateEntry
	var skipped []time.Time
	switch req.BookingType {
	case "consecutive":
		genReq, buildErr := buildConsecutiveRequest(validateConsecutiveRequest{
			VenueID: req.VenueID, CourtID: req.CourtID,
			StartDate: req.StartDate, EndDate: req.EndDate,
			StartTime: req.StartTime, EndTime: req.EndTime,
		})
		if buildErr != nil {
			writeError(w, r, buildErr)
			return
		}
		entries, skipped, err = schedule.GenerateConsecutive(genReq, cfg.Hours)
	case "weekly":
		genReq, buildErr := buildWeeklyRequest(validateWeeklyRequest{
			VenueID: req.VenueID, CourtID: req.CourtID,
			StartDate: req.StartDate, Weekdays: req.Weekdays, NumberOfWeeks: req.NumberOfWeeks,
			StartTime: req.StartTime, EndTime: req.EndTime,
		})
		if buildErr != nil {
			writeError(w, r, buildErr)
			return
		}
		entries, err = schedule.GenerateWeekly(genReq, cfg.Hours)
	default:
		writeError(w, r, apiutil.FieldError{Field: "booking_type", Reason: "must be consecutive or weekly"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	resolutions, err := parseResolutions(req.Resolutions)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := runValidation(ctx, db.Queries, cfg, req.CourtID, entries, skipped, resolutions, parseDiscount(req.Discount))
	if err != nil {
		// Creation fails closed on unresolved conflicts where validation
		// merely reports them.
		var unresolved conflict.UnresolvedError
		if errors.As(err, &unresolved) {
			apiutil.WriteJSON(w, http.StatusConflict, validationResponse{
				Valid:           false,
				Dates:           entryKeys(entries),
				SkippedDates:    dateKeys(skipped),
				Conflicts:       conflictsToDTO(result.Conflicts),
				UnresolvedDates: unresolved.Dates,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	if result.Summary.BookedDateCount == 0 {
		writeError(w, r, apiutil.FieldError{Field: "start_date", Reason: "produces no bookable dates"})
		return
	}

	groupID := uuid.NewString()
	skips := result.Resolved.SkipSet()

	var bookingIDs []int64
	err = db.RunInTx(ctx, func(txDB *appdb.DB) error {
		for _, entry := range entries {
			key := schedule.DateKey(entry.Date)
			if skips[key] {
				continue
			}
			effective := entry
			if override, ok := result.Resolved.Overrides[key]; ok {
				effective = entry.Effective(&override)
			}
			perDate := result.Summary.PerDate[key]
			booking, err := txDB.Queries.CreateBooking(ctx, appdb.CreateBookingParams{
				VenueID:       req.VenueID,
				CourtID:       effective.CourtID,
				GroupID:       groupID,
				BookingDate:   key,
				StartsAt:      effective.StartTime.String(),
				EndsAt:        effective.EndTime.String(),
				BookingAmount: perDate - cfg.Venue.AmenitiesFee,
				AmenitiesFee:  cfg.Venue.AmenitiesFee,
				PlatformFee:   int64(math.Round(float64(perDate) * pricing.PlatformFeeRate)),
				CustomerName:  strings.TrimSpace(req.CustomerName),
				CustomerEmail: strings.TrimSpace(req.CustomerEmail),
				CustomerPhone: phone,
			})
			if err != nil {
				return err
			}
			bookingIDs = append(bookingIDs, booking.ID)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	held := hold.Hold{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		BookingIDs: bookingIDs,
		CreatedAt:  time.Now().UTC(),
		TTL:        handlers.HoldTTL,
	}

	expiredDetails := email.HoldExpiredDetails{
		VenueName: cfg.Venue.Name,
		Dates:     entryKeys(entries),
	}
	customerEmail := strings.TrimSpace(req.CustomerEmail)

	manager := hold.NewManager(held, bookingReleaser{database: db}, appdb.NewHoldStore(db),
		hold.WithExpiryCallback(func(h hold.Hold) {
			dropSession(h.ID)
			email.SendAsync(context.Background(), mailer, customerEmail,
				email.BuildHoldExpired(expiredDetails), logger)
		}),
	)
	if err := manager.Start(context.WithoutCancel(ctx)); err != nil {
		writeError(w, r, err)
		return
	}
	setSession(&holdSession{manager: manager, groupID: groupID, bookingIDs: bookingIDs})

	snapshot := manager.Snapshot()
	apiutil.WriteJSON(w, http.StatusCreated, createBookingResponse{
		GroupID:      groupID,
		BookingIDs:   bookingIDs,
		SkippedDates: dateKeys(skipped),
		Hold: holdDTO{
			ID:               snapshot.ID,
			GroupID:          snapshot.GroupID,
			Status:           string(snapshot.Status),
			ExpiresAt:        snapshot.ExpiresAt().Format(time.RFC3339),
			RemainingSeconds: int64(manager.Remaining(time.Now()) / time.Second),
		},
		Summary: result.Summary,
	})
}

// --- cancellation ---

type cancelRequest struct {
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

// PATCH /api/v1/bookings/{id}/cancel-hold
func HandleCancelHold(w http.ResponseWriter, r *http.Request) {
	db := loadDB()
	if db == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req cancelRequest
	if r.ContentLength > 0 {
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}
	reason := strings.TrimSpace(req.CancellationReason)
	if reason == "" {
		reason = hold.ReasonCancelled
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	if s := currentSession(); s != nil && s.owns(bookingID) {
		holdID := s.manager.Snapshot().ID
		err := s.manager.Cancel(ctx, reason)
		dropSession(holdID)
		switch {
		case errors.Is(err, hold.ErrHoldExpired):
			apiutil.WriteJSON(w, http.StatusGone, map[string]string{"error": "hold already expired"})
		case errors.Is(err, hold.ErrAlreadySettled):
			apiutil.WriteJSON(w, http.StatusConflict, map[string]string{"error": "hold already settled"})
		case errors.Is(err, hold.ErrReleaseFailed):
			// Local state is cleared; the server-side rows catch up via the
			// stale-hold sweep. The customer's cancel still succeeded.
			apiutil.WriteJSON(w, http.StatusOK, map[string]string{
				"status":  "cancelled",
				"warning": "booking release is still propagating",
			})
		case err != nil:
			writeError(w, r, err)
		default:
			apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		}
		return
	}

	// No in-process hold owns this booking: cancel the row directly. The
	// update skips terminal rows, so a repeated cancel is a quiet success.
	if err := db.Queries.UpdateBookingStatuses(ctx, []int64{bookingID}, appdb.BookingStatusCancelled, reason); err != nil {
		writeError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// PATCH /api/v1/bookings/recurring-group/{groupID}/cancel
func HandleGroupCancel(w http.ResponseWriter, r *http.Request) {
	db := loadDB()
	if db == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	groupID := strings.TrimSpace(r.PathValue("groupID"))
	if groupID == "" {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid groupID"})
		return
	}

	var req cancelRequest
	if r.ContentLength > 0 {
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}
	reason := strings.TrimSpace(req.CancellationReason)
	if reason == "" {
		reason = hold.ReasonCancelled
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	if s := currentSession(); s != nil && s.groupID == groupID {
		holdID := s.manager.Snapshot().ID
		err := s.manager.Cancel(ctx, reason)
		dropSession(holdID)
		if err != nil && !errors.Is(err, hold.ErrReleaseFailed) &&
			!errors.Is(err, hold.ErrHoldExpired) && !errors.Is(err, hold.ErrAlreadySettled) {
			writeError(w, r, err)
			return
		}
	}

	if err := db.Queries.CancelGroup(ctx, groupID, appdb.BookingStatusCancelled, reason); err != nil {
		writeError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "group_id": groupID})
}

// --- payment ---

type createPaymentResponse struct {
	CheckoutURL      string `json:"checkout_url"`
	HoldExpiresAt    string `json:"hold_expires_at"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// POST /api/v1/bookings/{id}/payment
func HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	db := loadDB()
	if db == nil || hub == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s := currentSession()
	if s == nil || !s.owns(bookingID) {
		apiutil.WriteJSON(w, http.StatusConflict, map[string]string{"error": "no active hold for this booking"})
		return
	}
	snapshot := s.manager.Snapshot()
	if snapshot.Status != hold.StatusHeld {
		if snapshot.Status == hold.StatusExpired {
			apiutil.WriteJSON(w, http.StatusGone, map[string]string{"error": "hold expired; start a new booking"})
			return
		}
		apiutil.WriteJSON(w, http.StatusConflict, map[string]string{"error": "hold already settled"})
		return
	}

	events, unsubscribe := hub.Subscribe()
	reconcileCtx, cancelReconcile := context.WithCancel(context.Background())
	if !setSessionReconcileCancel(snapshot.ID, cancelReconcile) {
		cancelReconcile()
		unsubscribe()
		apiutil.WriteJSON(w, http.StatusConflict, map[string]string{"error": "hold already settled"})
		return
	}

	groupID := s.groupID
	bookingIDs := s.bookingIDs
	holdID := snapshot.ID
	reconciler := reconcile.New(s.manager, bookingID, events, bookingStateFetcher{queries: db.Queries},
		reconcile.WithPollInterval(handlers.PollInterval),
		reconcile.WithMaxAttempts(handlers.PollMaxAttempts),
		reconcile.WithCompletionCallback(func() {
			completePayment(db, groupID, bookingIDs)
		}),
	)

	go func() {
		defer unsubscribe()
		defer cancelReconcile()
		outcome, err := reconciler.Run(reconcileCtx)
		switch outcome {
		case reconcile.OutcomePaid, reconcile.OutcomeSettledElsewhere:
			dropSession(holdID)
		case reconcile.OutcomeTimeout:
			log.Info().Int64("booking_id", bookingID).Msg("Payment window closed unconfirmed")
		case reconcile.OutcomeAborted:
			log.Debug().Err(err).Int64("booking_id", bookingID).Msg("Payment reconciliation aborted")
		}
	}()

	checkoutURL := strings.TrimRight(handlers.CheckoutBaseURL, "/") + "/checkout/" + uuid.NewString()
	logger.Info().
		Int64("booking_id", bookingID).
		Str("group_id", groupID).
		Msg("Payment session opened")

	apiutil.WriteJSON(w, http.StatusAccepted, createPaymentResponse{
		CheckoutURL:      checkoutURL,
		HoldExpiresAt:    snapshot.ExpiresAt().Format(time.RFC3339),
		RemainingSeconds: int64(s.manager.Remaining(time.Now()) / time.Second),
	})
}

// POST /api/v1/bookings/recurring-group/{groupID}/payment
//
// One payment session covers the whole recurring group; the reconciler tracks
// the group's first booking id and completion confirms every row.
func HandleGroupPayment(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("groupID"))
	if groupID == "" {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid groupID"})
		return
	}

	s := currentSession()
	if s == nil || s.groupID != groupID || len(s.bookingIDs) == 0 {
		apiutil.WriteJSON(w, http.StatusConflict, map[string]string{"error": "no active hold for this group"})
		return
	}

	r.SetPathValue("id", strconv.FormatInt(s.bookingIDs[0], 10))
	HandleCreatePayment(w, r)
}

// completePayment runs exactly once per settled payment session: confirm the
// rows, then tell the customer.
func completePayment(db *appdb.DB, groupID string, bookingIDs []int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := log.With().Str("group_id", groupID).Logger()
	if err := db.Queries.MarkBookingsPaid(ctx, bookingIDs); err != nil {
		logger.Error().Err(err).Msg("Failed to mark bookings paid")
		return
	}
	logger.Info().Ints64("booking_ids", bookingIDs).Msg("Bookings confirmed as paid")

	bookings, err := db.Queries.ListBookingsByGroup(ctx, groupID)
	if err != nil || len(bookings) == 0 {
		logger.Warn().Err(err).Msg("Could not load bookings for confirmation email")
		return
	}

	venue, err := db.Queries.GetVenue(ctx, bookings[0].VenueID)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not load venue for confirmation email")
		return
	}

	var total int64
	dates := make([]string, 0, len(bookings))
	for _, b := range bookings {
		if b.PaymentStatus != appdb.PaymentStatusPaid {
			continue
		}
		dates = append(dates, b.BookingDate)
		total += b.BookingAmount + b.AmenitiesFee + b.PlatformFee
	}

	email.SendAsync(ctx, mailer, bookings[0].CustomerEmail, email.BuildPaymentConfirmation(email.PaymentConfirmationDetails{
		VenueName:  venue.Name,
		Dates:      dates,
		TimeRange:  bookings[0].StartsAt + " - " + bookings[0].EndsAt,
		GrandTotal: total,
	}), &logger)
}

// --- reads ---

// GET /api/v1/bookings/{id}
func HandleGetBooking(w http.ResponseWriter, r *http.Request) {
	db := loadDB()
	if db == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	booking, err := db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, bookingToDTO(booking))
}

// GET /api/v1/bookings/hold
func HandleHoldStatus(w http.ResponseWriter, r *http.Request) {
	s := currentSession()
	if s == nil {
		apiutil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no active hold"})
		return
	}
	snapshot := s.manager.Snapshot()
	apiutil.WriteJSON(w, http.StatusOK, holdDTO{
		ID:               snapshot.ID,
		GroupID:          snapshot.GroupID,
		Status:           string(snapshot.Status),
		ExpiresAt:        snapshot.ExpiresAt().Format(time.RFC3339),
		RemainingSeconds: int64(s.manager.Remaining(time.Now()) / time.Second),
	})
}

// --- webhook ingress ---

type paymentEventRequest struct {
	Type     string `json:"type"`
	Metadata struct {
		BookingID int64 `json:"booking_id"`
	} `json:"metadata"`
}

// POST /api/v1/payments/events receives provider webhooks and fans them out to
// whatever reconciler is waiting. Unknown event types are accepted and
// dropped downstream; the provider retries on anything but a 2xx.
func HandlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	if hub == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req paymentEventRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Type == "" || req.Metadata.BookingID <= 0 {
		apiutil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "type and metadata.booking_id are required"})
		return
	}

	hub.Publish(reconcile.Event{Type: req.Type, BookingID: req.Metadata.BookingID})
	apiutil.WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}
