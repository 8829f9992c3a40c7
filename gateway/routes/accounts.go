package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/crypto"
)

func (h *handlers) createReputation(w http.ResponseWriter, r *http.Request) {
	record, err := h.exchange.CreateReputation(r.Context(), principal(r).Caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReputationJSON(record))
}

func (h *handlers) getReputation(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	record, ok, err := h.exchange.Reputation(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, fmt.Errorf("%w: reputation record", exchangeerrors.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newReputationJSON(record))
}

func (h *handlers) updateReputation(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req outcomeRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	record, err := h.exchange.UpdateReputation(r.Context(), principal(r).Approvals, user, req.outcome())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReputationJSON(record))
}

func (h *handlers) touchRewards(w http.ResponseWriter, r *http.Request) {
	registry, err := h.exchange.TouchRewards(r.Context(), principal(r).Approvals)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRegistryJSON(registry))
}

func (h *handlers) getRewards(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.exchange.Rewards(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRewardsJSON(account))
}

func (h *handlers) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from := principal(r).Caller
	if err := h.exchange.Transfer(r.Context(), from, to, amount); err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.exchange.Balance(from)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountJSON{Address: crypto.FormatAddress(from), Balance: events.FormatAmount(balance)})
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.exchange.Balance(addr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountJSON{Address: crypto.FormatAddress(addr), Balance: events.FormatAmount(balance)})
}
