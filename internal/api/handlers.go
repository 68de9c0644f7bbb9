package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/apperr"
	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// writeDomainError maps the service error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	var ire *apperr.InsufficientRepaymentError
	switch {
	case errors.Is(err, apperr.ErrNoteNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("note not found"))
	case errors.As(err, &ire):
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error:    "insufficient repayment",
			Required: ire.Required.StringFixed(2),
		})
	case errors.Is(err, apperr.ErrInvalidNoteTerms),
		errors.Is(err, apperr.ErrInvalidAccrualDate),
		errors.Is(err, apperr.ErrInvalidConversionInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidStateTransition),
		errors.Is(err, apperr.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decQuery parses an optional decimal query parameter.
func decQuery(q url.Values, key string) (*decimal.Decimal, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// asOfQuery parses an optional RFC 3339 as_of query parameter. A missing
// parameter yields the zero time, which downstream means "now".
func asOfQuery(q url.Values) (time.Time, error) {
	raw := q.Get("as_of")
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Issue a new convertible note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note terms"
//	@Success		201		{object}	models.ConvertibleNote
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	note, err := h.svc.Create(r.Context(), noteservice.CreateParams{
		Principal:      req.Principal,
		InterestRate:   req.InterestRate,
		Compounding:    req.Compounding,
		IssuedAt:       req.IssuedAt,
		MaturityDate:   req.MaturityDate,
		DiscountRate:   req.DiscountRate,
		ValuationCap:   req.ValuationCap,
		QFThreshold:    req.QFThreshold,
		AutoConversion: req.AutoConversion,
	})
	if err != nil {
		writeDomainError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and status filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			status	query		string	false	"Filter by status"	Enums(ACTIVE, CONVERTED, REPAID, DEFAULTED)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := models.Status(strings.ToUpper(q.Get("status")))

	notes, total, err := h.svc.List(r.Context(), limit, offset, status)
	if err != nil {
		writeDomainError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.ConvertibleNote
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetInterest handles GET /api/notes/{id}/interest.
//
//	@Summary		Project accrued interest without persisting
//	@Tags			interest
//	@Produce		json
//	@Param			id		path		string	true	"Note id"
//	@Param			as_of	query		string	false	"Projection date (RFC 3339)"
//	@Success		200		{object}	InterestResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/interest [get]
func (h *Handler) GetInterest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asOf, err := asOfQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("as_of must be RFC 3339"))
		return
	}

	accrued, err := h.svc.GetAccruedInterest(r.Context(), id, asOf)
	if err != nil {
		writeDomainError(w, "get interest", err)
		return
	}
	writeJSON(w, http.StatusOK, InterestResponse{NoteID: id, AsOf: asOf, AccruedInterest: accrued})
}

// PostAccrual handles POST /api/notes/{id}/accruals.
//
//	@Summary		Book accrued interest up to a date
//	@Tags			interest
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id"
//	@Param			body	body		AccrualRequest	false	"Accrual date"
//	@Success		200		{object}	models.ConvertibleNote
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/accruals [post]
func (h *Handler) PostAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrualRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}

	note, err := h.svc.AccrueInterest(r.Context(), chi.URLParam(r, "id"), req.AsOf)
	if err != nil {
		writeDomainError(w, "accrue interest", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// PreviewConversion handles GET /api/notes/{id}/conversion.
//
//	@Summary		Preview conversion economics from the booked balance
//	@Tags			conversion
//	@Produce		json
//	@Param			id				path		string	true	"Note id"
//	@Param			price_per_share	query		string	true	"Trigger round price per share"
//	@Param			round_valuation	query		string	false	"Pre-money valuation of the round"
//	@Success		200				{object}	ConversionQuote
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/conversion [get]
func (h *Handler) PreviewConversion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	price, err := decQuery(q, "price_per_share")
	if err != nil || price == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("price_per_share is required"))
		return
	}
	valuation, err := decQuery(q, "round_valuation")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("round_valuation must be a decimal"))
		return
	}

	quote, err := h.svc.CalculateConversion(r.Context(), chi.URLParam(r, "id"), *price, valuation)
	if err != nil {
		writeDomainError(w, "preview conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Convert handles POST /api/notes/{id}/conversion.
//
//	@Summary		Convert a note to equity
//	@Tags			conversion
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		ConversionRequest	true	"Conversion terms"
//	@Success		200		{object}	models.ConvertibleNote
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/conversion [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	note, err := h.svc.Convert(r.Context(), chi.URLParam(r, "id"), req.PricePerShare, req.RoundValuation, req.AsOf)
	if err != nil {
		writeDomainError(w, "convert note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Repay handles POST /api/notes/{id}/repayment.
//
//	@Summary		Repay a note in full
//	@Tags			lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		RepaymentRequest	true	"Repayment amount"
//	@Success		200		{object}	models.ConvertibleNote
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/repayment [post]
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	var req RepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	note, err := h.svc.Repay(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeDomainError(w, "repay note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// MarkDefaulted handles POST /api/notes/{id}/default.
//
//	@Summary		Mark a note as defaulted
//	@Tags			lifecycle
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.ConvertibleNote
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/default [post]
func (h *Handler) MarkDefaulted(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.MarkDefaulted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "default note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RecordFinancing handles POST /api/notes/{id}/financing-events.
//
//	@Summary		Record a financing round against a note
//	@Tags			lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Note id"
//	@Param			body	body		FinancingEventRequest	true	"Round details"
//	@Success		200		{object}	FinancingEventResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/financing-events [post]
func (h *Handler) RecordFinancing(w http.ResponseWriter, r *http.Request) {
	var req FinancingEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	qualified, note, err := h.svc.RecordFinancingRound(r.Context(), chi.URLParam(r, "id"),
		req.RoundAmount, req.PricePerShare, req.RoundValuation, req.AsOf)
	if err != nil {
		writeDomainError(w, "record financing", err)
		return
	}
	writeJSON(w, http.StatusOK, FinancingEventResponse{Qualified: qualified, Note: note})
}

// ListMaturing handles GET /api/notes/maturing.
//
//	@Summary		List active notes at or near maturity
//	@Tags			notes
//	@Produce		json
//	@Param			within_days	query		int	false	"Horizon in days (default 30)"
//	@Success		200			{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/maturing [get]
func (h *Handler) ListMaturing(w http.ResponseWriter, r *http.Request) {
	withinDays := 30
	if raw := r.URL.Query().Get("within_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("within_days must be a non-negative integer"))
			return
		}
		withinDays = n
	}

	notes, err := h.svc.ListMaturing(r.Context(), withinDays)
	if err != nil {
		writeDomainError(w, "list maturing", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}
