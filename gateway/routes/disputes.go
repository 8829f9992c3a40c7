package routes

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/native/admin"
	"p2pexchange/native/dispute"
)

func (h *handlers) disputeID(r *http.Request) ([32]byte, error) {
	return parseID("id", chi.URLParam(r, "id"))
}

func (h *handlers) getDispute(w http.ResponseWriter, r *http.Request) {
	id, err := h.disputeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.exchange.Dispute(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeJSON(d))
}

func (h *handlers) getVote(w http.ResponseWriter, r *http.Request) {
	id, err := h.disputeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	juror, err := parseAddress("juror", chi.URLParam(r, "juror"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vote, ok, err := h.exchange.Vote(id, juror)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, fmt.Errorf("%w: vote", exchangeerrors.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newVoteJSON(vote))
}

func (h *handlers) assignJurors(w http.ResponseWriter, r *http.Request) {
	id, err := h.disputeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req jurorsRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	jurors, err := req.jurors()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.exchange.AssignJurors(r.Context(), principal(r).Approvals, id, jurors)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeJSON(d))
}

func (h *handlers) submitEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := h.disputeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req evidenceRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.exchange.SubmitEvidence(r.Context(), principal(r).Caller, id, req.URL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeJSON(d))
}

func (h *handlers) castVote(w http.ResponseWriter, r *http.Request) {
	id, err := h.disputeID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.ForBuyer == nil {
		h.fail(w, r, badRequest("forBuyer: required"))
		return
	}
	d, vote, err := h.exchange.CastVote(r.Context(), principal(r).Caller, id, *req.ForBuyer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, voteResponse{Dispute: newDisputeJSON(d), Vote: newVoteJSON(vote)})
}

type disputeResolutionFunc func(ctx context.Context, approvals admin.Approvals, id [32]byte) (*dispute.Dispute, error)

// disputeResolution serves the admin-gated endpoints that settle a dispute.
func (h *handlers) disputeResolution(fn disputeResolutionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.disputeID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		d, err := fn(r.Context(), principal(r).Approvals, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newDisputeJSON(d))
	}
}
