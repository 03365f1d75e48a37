package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"hlclock/internal/hlc"
)

type timestampResponse struct {
	Timestamp hlc.Timestamp `json:"timestamp"`
	Packed    uint64        `json:"packed"`
	Physical  uint64        `json:"physical"`
	Logical   uint64        `json:"logical"`
}

func newTimestampResponse(ts hlc.Timestamp) timestampResponse {
	return timestampResponse{
		Timestamp: ts,
		Packed:    uint64(ts),
		Physical:  ts.Physical(),
		Logical:   ts.Logical(),
	}
}

func (h *Handler) getTimestamp(w http.ResponseWriter, r *http.Request) {
	ts, err := h.clock.Now()
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTimestampResponse(ts))
}

func (h *Handler) advanceTimestamp(w http.ResponseWriter, r *http.Request) {
	ts, err := h.clock.Advance()
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTimestampResponse(ts))
}

func (h *Handler) updateTimestamp(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["value"]
	remote, err := parseTimestamp(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid timestamp %q: %w", raw, err))
		return
	}

	ts, err := h.clock.Update(remote)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTimestampResponse(ts))
}

func (h *Handler) listPeers(w http.ResponseWriter, r *http.Request) {
	if h.peers == nil {
		h.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.peers.Snapshot())
}
