package routes

import (
	"fmt"
	"net/http"

	exchangeerrors "p2pexchange/core/errors"
)

func (h *handlers) getAdmin(w http.ResponseWriter, r *http.Request) {
	registry, ok, err := h.exchange.Admin()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, fmt.Errorf("%w: admin registry", exchangeerrors.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newRegistryJSON(registry))
}

// initializeAdmin makes the signer the primary authority.
func (h *handlers) initializeAdmin(w http.ResponseWriter, r *http.Request) {
	registry, err := h.exchange.InitializeAdmin(r.Context(), principal(r).Caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRegistryJSON(registry))
}

func (h *handlers) updateAuthorities(w http.ResponseWriter, r *http.Request) {
	var req authoritiesRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	secondary := make([][20]byte, 0, len(req.Secondary))
	for i, raw := range req.Secondary {
		addr, err := parseAddress(fmt.Sprintf("secondary[%d]", i), raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		secondary = append(secondary, addr)
	}
	registry, err := h.exchange.UpdateAuthorities(r.Context(), principal(r).Approvals, secondary, req.RequiredSignatures)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRegistryJSON(registry))
}
