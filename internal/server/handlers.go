package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"

	"FundLedger/internal/fund"
	"FundLedger/internal/observability"
	"FundLedger/internal/query"
	"FundLedger/internal/venue"
)

type handlers struct {
	engine  *fund.Engine
	query   *query.Service
	metrics *observability.Metrics
	log     zerolog.Logger
}

func (h *handlers) register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/fund/balance", h.getFundBalance},
		{"GET", "/v1/fund/balance/{currency}", h.getCurrencyBalance},
		{"GET", "/v1/fund/fees", h.getFeeState},
		{"GET", "/v1/fund/queue/{currency}", h.getQueue},
		{"GET", "/v1/fund/currencies", h.getCurrencies},
		{"GET", "/v1/accounts/{holder}/balance", h.getAccountBalance},

		{"POST", "/v1/fund/deposit", h.postDeposit},
		{"POST", "/v1/fund/withdraw", h.postWithdraw},
		{"POST", "/v1/fund/process-withdrawals", h.postProcessWithdrawals},
		{"POST", "/v1/fund/fees/deposit", h.postDepositFees},
		{"POST", "/v1/fund/fees/withdraw", h.postWithdrawFees},

		{"POST", "/v1/operator/venues/deposit", h.postVenueDeposit},
		{"POST", "/v1/operator/venues/withdraw", h.postVenueWithdraw},
		{"POST", "/v1/operator/venues/withdraw-all", h.postVenueWithdrawAll},

		{"POST", "/v1/admin/enabled", h.postSetEnabled},
		{"POST", "/v1/admin/balance-cap", h.postSetBalanceCap},
		{"POST", "/v1/admin/operator", h.postSetOperator},
		{"POST", "/v1/admin/beneficiary", h.postSetBeneficiary},
		{"POST", "/v1/admin/fee-rate", h.postSetFeeRate},
		{"POST", "/v1/admin/currencies/{currency}/accepted", h.postSetAccepted},

		{"GET", "/v1/events", h.getEvents},
		{"GET", "/v1/events/{sequence}", h.getEvent},
		{"GET", "/v1/snapshot", h.getSnapshot},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, h.instrument(r.pattern, r.handler)); err != nil {
			return fmt.Errorf("route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

func (h *handlers) instrument(pattern string, next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r, pathParams)
		if h.metrics != nil {
			h.metrics.QueryRequests.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
			h.metrics.QueryDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
		}
	}
}

// statusRecorder captures the response status for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- response plumbing ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps engine errors onto HTTP status codes.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, fund.ErrFundDisabled):
		code = http.StatusServiceUnavailable
	case errors.Is(err, fund.ErrUnknownCurrency):
		code = http.StatusNotFound
	case errors.Is(err, fund.ErrNotOwner),
		errors.Is(err, fund.ErrNotOperator),
		errors.Is(err, fund.ErrUnauthorizedPredecessor):
		code = http.StatusForbidden
	case errors.Is(err, fund.ErrZeroAmount),
		errors.Is(err, fund.ErrDustAmount),
		errors.Is(err, fund.ErrCurrencyNotAccepted),
		errors.Is(err, fund.ErrRateUnchanged),
		errors.Is(err, venue.ErrInvalidVenueIndex):
		code = http.StatusBadRequest
	case errors.Is(err, fund.ErrBalanceCapExceeded),
		errors.Is(err, fund.ErrInsufficientShares),
		errors.Is(err, fund.ErrInsufficientFundBalance),
		errors.Is(err, fund.ErrZeroFundBalance),
		errors.Is(err, fund.ErrInsufficientLiquidity),
		errors.Is(err, fund.ErrNoFeesAvailable),
		errors.Is(err, fund.ErrCurrencyExists):
		code = http.StatusConflict
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	return v, nil
}

// --- read handlers ---

func (h *handlers) getFundBalance(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	fundUsd, err := h.engine.FundBalanceUsd()
	if err != nil {
		h.writeError(w, err)
		return
	}
	rawUsd, err := h.engine.RawFundBalanceUsd()
	if err != nil {
		h.writeError(w, err)
		return
	}
	unclaimed, err := h.engine.UnclaimedInterestFees()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fund_balance_usd":     fundUsd.String(),
		"raw_fund_balance_usd": rawUsd.String(),
		"net_deposits_usd":     h.engine.NetDeposits().String(),
		"unclaimed_fees_usd":   unclaimed.String(),
		"enabled":              h.engine.Enabled(),
		"sequence":             h.engine.Sequence(),
	})
}

func (h *handlers) getCurrencyBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	code := pathParams["currency"]
	raw, err := h.engine.RawFundBalance(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	queued, err := h.engine.QueuedTotal(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currency":     code,
		"raw_balance":  raw.String(),
		"queued_total": queued.String(),
	})
}

func (h *handlers) getFeeState(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	unclaimed, err := h.engine.UnclaimedInterestFees()
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap := h.engine.FeeSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"rate":                        snap.Rate.String(),
		"raw_interest_at_last_rate":   snap.RawInterestAtLastRate.String(),
		"fees_generated_at_last_rate": snap.FeesGeneratedAtLastRate.String(),
		"fees_claimed":                snap.FeesClaimed.String(),
		"unclaimed":                   unclaimed.String(),
	})
}

func (h *handlers) getQueue(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	code := pathParams["currency"]
	entries, err := h.engine.PendingWithdrawals(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	total, err := h.engine.QueuedTotal(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	type entry struct {
		Payee  string `json:"payee"`
		Amount string `json:"amount"`
	}
	out := make([]entry, len(entries))
	for i, e := range entries {
		out[i] = entry{Payee: e.Payee, Amount: e.Amount.String()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currency": code,
		"entries":  out,
		"total":    total.String(),
	})
}

func (h *handlers) getCurrencies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"currencies": h.engine.Currencies(),
	})
}

func (h *handlers) getAccountBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	holder := pathParams["holder"]
	bal, err := h.engine.AccountBalanceUsd(holder)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holder":      holder,
		"balance_usd": bal.String(),
	})
}

// --- mutation handlers ---

type transferRequest struct {
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

func (h *handlers) postDeposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.Deposit(req.Caller, req.Currency, amount); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": h.engine.Sequence()})
}

func (h *handlers) postWithdraw(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.Withdraw(req.Caller, req.Currency, amount); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": h.engine.Sequence()})
}

func (h *handlers) postProcessWithdrawals(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.ProcessPendingWithdrawals(req.Currency); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": h.engine.Sequence()})
}

func (h *handlers) postDepositFees(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := h.engine.DepositFees(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": h.engine.Sequence()})
}

func (h *handlers) postWithdrawFees(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller   string `json:"caller"`
		Currency string `json:"currency"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.WithdrawFees(req.Caller, req.Currency); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": h.engine.Sequence()})
}

type venueRequest struct {
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
	Venue    int    `json:"venue"`
	Amount   string `json:"amount,omitempty"`
}

func (h *handlers) postVenueDeposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	h.venueOp(w, r, func(req venueRequest, amount *big.Int) error {
		return h.engine.DepositToVenue(req.Caller, req.Currency, req.Venue, amount)
	}, true)
}

func (h *handlers) postVenueWithdraw(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	h.venueOp(w, r, func(req venueRequest, amount *big.Int) error {
		return h.engine.WithdrawFromVenue(req.Caller, req.Currency, req.Venue, amount)
	}, true)
}

func (h *handlers) postVenueWithdrawAll(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	h.venueOp(w, r, func(req venueRequest, _ *big.Int) error {
		return h.engine.WithdrawAllFromVenue(req.Caller, req.Currency, req.Venue)
	}, false)
}

func (h *handlers) venueOp(w http.ResponseWriter, r *http.Request, op func(venueRequest, *big.Int) error, needsAmount bool) {
	var req venueRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	var amount *big.Int
	if needsAmount {
		var err error
		if amount, err = parseAmount(req.Amount); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	if err := op(req, amount); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": h.engine.Sequence()})
}

// --- admin handlers ---

func (h *handlers) postSetEnabled(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller  string `json:"caller"`
		Enabled bool   `json:"enabled"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.SetEnabled(req.Caller, req.Enabled); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (h *handlers) postSetBalanceCap(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller string `json:"caller"`
		Cap    string `json:"cap"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	newCap, err := parseAmount(req.Cap)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.SetBalanceCap(req.Caller, newCap); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cap": newCap.String()})
}

func (h *handlers) postSetOperator(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller   string `json:"caller"`
		Operator string `json:"operator"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.SetOperator(req.Caller, req.Operator); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operator": req.Operator})
}

func (h *handlers) postSetBeneficiary(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller      string `json:"caller"`
		Beneficiary string `json:"beneficiary"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.SetFeeBeneficiary(req.Caller, req.Beneficiary); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"beneficiary": req.Beneficiary})
}

func (h *handlers) postSetFeeRate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller string `json:"caller"`
		Rate   string `json:"rate"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	newRate, err := parseAmount(req.Rate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.SetInterestFeeRate(req.Caller, newRate); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rate": newRate.String()})
}

func (h *handlers) postSetAccepted(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller   string `json:"caller"`
		Accepted bool   `json:"accepted"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.engine.SetCurrencyAccepted(req.Caller, pathParams["currency"], req.Accepted); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": req.Accepted})
}

// --- operation log handlers ---

func (h *handlers) getEvents(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if h.query == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "operation log not configured"})
		return
	}
	q := r.URL.Query()
	filter := query.EventFilter{
		EventType: q.Get("event_type"),
		Currency:  q.Get("currency"),
	}
	if from := q.Get("from_sequence"); from != "" {
		fmt.Sscanf(from, "%d", &filter.FromSequence)
	}
	if limit := q.Get("limit"); limit != "" {
		fmt.Sscanf(limit, "%d", &filter.Limit)
	}
	events, err := h.query.ListEvents(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handlers) getEvent(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	if h.query == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "operation log not configured"})
		return
	}
	var seq int64
	if _, err := fmt.Sscanf(pathParams["sequence"], "%d", &seq); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad sequence"})
		return
	}
	rec, err := h.query.GetEvent(r.Context(), seq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "event not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) getSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if h.query == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "operation log not configured"})
		return
	}
	info, err := h.query.LatestSnapshot(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if info == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}
