package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"valuta/internal/core"
	applog "valuta/internal/log"
	"valuta/internal/state"
)

const maxBodyBytes = 4 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a small JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// mutate applies op and answers with the resulting state.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) error) {
	if err := op(r.Context()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(s.engine.Snapshot()))
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrEmptyCode):
		writeError(w, http.StatusBadRequest, "currency code is required")
	case errors.Is(err, state.ErrStopped), errors.Is(err, state.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "State operation failed", applog.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.engine.Snapshot()))
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currencies(s.engine.Snapshot()))
}

// handleConvert converts with the current table. Missing parameters fall
// back to the converter's current selection.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap.Rates == nil {
		writeError(w, http.StatusServiceUnavailable, "rates not loaded")
		return
	}

	q := r.URL.Query()
	amount := strings.TrimSpace(q.Get("amount"))
	if amount == "" {
		amount = snap.AmountRaw
	}
	from := core.NormalizeCode(q.Get("from"))
	if from == "" {
		from = snap.FromCode
	}
	to := core.NormalizeCode(q.Get("to"))
	if to == "" {
		to = snap.ToCode
	}

	if _, ok := core.ParseAmount(amount); !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}
	fromRate, okFrom := snap.Rates.Rate(from)
	toRate, okTo := snap.Rates.Rate(to)
	if !okFrom || !okTo {
		writeError(w, http.StatusUnprocessableEntity, "unknown currency code")
		return
	}

	result := core.Convert(amount, fromRate, toRate)
	writeJSON(w, http.StatusOK, convertView{
		Amount:    amount,
		From:      from,
		To:        to,
		Rate:      core.Convert("1", fromRate, toRate),
		Result:    result,
		Formatted: core.FormatAmount(result),
		BaseCode:  snap.Rates.BaseCode,
	})
}

func (s *Server) handleSetBase(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if code := core.NormalizeCode(body.Code); code != "" && !knownCode(s.engine.Snapshot(), code) {
		writeError(w, http.StatusUnprocessableEntity, "unknown currency code")
		return
	}
	s.mutate(w, r, func(ctx context.Context) error {
		return s.engine.SetBaseCurrency(ctx, body.Code)
	})
}

// knownCode reports whether code is in the rate table or the catalog. With
// neither loaded there is nothing to check against and any code passes.
func knownCode(snap state.Snapshot, code string) bool {
	if snap.Rates == nil && len(snap.Catalog) == 0 {
		return true
	}
	if snap.Rates.Has(code) {
		return true
	}
	_, ok := snap.Catalog[code]
	return ok
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.engine.Refresh)
}

func (s *Server) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.engine.ReloadCatalog)
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.engine.SwapFromTo)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From   *string `json:"from"`
		To     *string `json:"to"`
		Amount *string `json:"amount"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.From == nil && body.To == nil && body.Amount == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	s.mutate(w, r, func(ctx context.Context) error {
		if body.From != nil {
			if err := s.engine.SetFrom(ctx, *body.From); err != nil {
				return err
			}
		}
		if body.To != nil {
			if err := s.engine.SetTo(ctx, *body.To); err != nil {
				return err
			}
		}
		if body.Amount != nil {
			return s.engine.SetAmount(ctx, *body.Amount)
		}
		return nil
	})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	s.mutate(w, r, func(ctx context.Context) error {
		return s.engine.ToggleFavorite(ctx, code)
	})
}

func (s *Server) handleFavoritesOnly(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mutate(w, r, func(ctx context.Context) error {
		return s.engine.SetFavoritesOnly(ctx, *body.Enabled)
	})
}
