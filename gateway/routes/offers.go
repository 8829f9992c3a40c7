package routes

import (
	"context"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"p2pexchange/native/offer"
)

const maxListLimit = 200

func (h *handlers) offerID(r *http.Request) ([32]byte, error) {
	return parseID("id", chi.URLParam(r, "id"))
}

func (h *handlers) listOffers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := offer.Filter{Limit: maxListLimit}
	if raw := query.Get("status"); raw != "" {
		status, err := offer.ParseStatus(raw)
		if err != nil {
			h.fail(w, r, badRequest("status: %v", err))
			return
		}
		filter.Status = &status
	}
	if raw := query.Get("participant"); raw != "" {
		addr, err := parseAddress("participant", raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.Participant = addr
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.fail(w, r, badRequest("limit: must be a positive integer"))
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	list, err := h.exchange.Offers(filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]offerJSON, 0, len(list))
	for _, o := range list {
		out = append(out, newOfferJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": out})
}

func (h *handlers) getOffer(w http.ResponseWriter, r *http.Request) {
	id, err := h.offerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.exchange.Offer(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferJSON(o))
}

func (h *handlers) getEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := h.offerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.exchange.Escrow(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowJSON(view))
}

func (h *handlers) getOfferDispute(w http.ResponseWriter, r *http.Request) {
	id, err := h.offerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.exchange.DisputeForOffer(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeJSON(d))
}

func (h *handlers) createOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.exchange.CreateOffer(r.Context(), principal(r).Caller, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfferJSON(o))
}

type offerTransitionFunc func(ctx context.Context, caller [20]byte, id [32]byte) (*offer.Offer, error)

// offerTransition serves the body-less offer transitions that only need the
// caller and the offer id.
func (h *handlers) offerTransition(fn offerTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.offerID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		o, err := fn(r.Context(), principal(r).Caller, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOfferJSON(o))
	}
}

func (h *handlers) acceptOffer(w http.ResponseWriter, r *http.Request) {
	id, err := h.offerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req acceptRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var bond *big.Int
	if req.Bond != "" {
		if bond, err = parseAmount("bond", req.Bond); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	o, err := h.exchange.AcceptOffer(r.Context(), principal(r).Caller, id, bond)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferJSON(o))
}

func (h *handlers) openDispute(w http.ResponseWriter, r *http.Request) {
	id, err := h.offerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req disputeRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.exchange.OpenDispute(r.Context(), principal(r).Caller, id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDisputeJSON(d))
}
