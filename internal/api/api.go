package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hlclock/internal/clock"
	"hlclock/internal/gossip"
	"hlclock/internal/hlc"
	"hlclock/internal/logging"
	"hlclock/internal/repair"
	"hlclock/internal/storage"
)

// Clock is the part of the node clock the handlers need.
type Clock interface {
	Now() (hlc.Timestamp, error)
	Advance() (hlc.Timestamp, error)
	Update(remote hlc.Timestamp) (hlc.Timestamp, error)
}

// Peers reports the gossip view of the cluster.
type Peers interface {
	Snapshot() []gossip.PeerState
	Addrs() map[string]string
}

// Remote reads and writes keys on other nodes.
type Remote interface {
	repair.Replicator
	Fetch(ctx context.Context, addr, key string) (repair.VersionedValue, bool, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithPeers enables replication of writes, cluster reads and /peers.
func WithPeers(peers Peers, remote Remote) Option {
	return func(h *Handler) {
		h.peers = peers
		h.remote = remote
	}
}

// WithGatherer serves the gathered metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithTimeout bounds every request made to a peer.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// Handler serves the HTTP API of one node.
type Handler struct {
	nodeID   string
	clock    Clock
	store    storage.Store
	logger   logging.Logger
	peers    Peers
	remote   Remote
	repairer *repair.ReadRepairer
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

// New creates a handler for the node nodeID.
func New(nodeID string, clock Clock, store storage.Store, logger logging.Logger, opts ...Option) *Handler {
	h := &Handler{
		nodeID:  nodeID,
		clock:   clock,
		store:   store,
		logger:  logger,
		timeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(h)
	}
	if h.remote != nil {
		h.repairer = repair.NewReadRepairer(h.remote, h.timeout, logger)
	}
	return h
}

// Route registers the handlers on r.
func (h *Handler) Route(r *mux.Router) {
	r.Use(h.withLog)

	r.HandleFunc("/timestamp", h.getTimestamp).Methods(http.MethodGet)
	r.HandleFunc("/timestamp", h.advanceTimestamp).Methods(http.MethodPost)
	r.HandleFunc("/timestamp/{value}", h.updateTimestamp).Methods(http.MethodPost)

	r.HandleFunc("/kv", h.listKeys).Methods(http.MethodGet)
	r.HandleFunc("/kv/{key:.*}", h.getKey).Methods(http.MethodGet)
	r.HandleFunc("/kv/{key:.*}", h.putKey).Methods(http.MethodPut)
	r.HandleFunc("/kv/{key:.*}", h.deleteKey).Methods(http.MethodDelete)

	r.HandleFunc("/peers", h.listPeers).Methods(http.MethodGet)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Router returns a new router with every route registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.Route(r)
	return r
}

func (h *Handler) withLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debugf("%s %s", r.Method, r.URL)
		next.ServeHTTP(w, r)
	})
}

// parseTimestamp accepts both the "physical.logical" text form and the
// packed decimal form.
func parseTimestamp(s string) (hlc.Timestamp, error) {
	if strings.Contains(s, ".") {
		return hlc.ParseTimestamp(s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return hlc.Unpack(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, hlc.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, clock.ErrClockOffset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, hlc.ErrAmbiguousMerge):
		return http.StatusConflict
	case errors.Is(err, hlc.ErrLogicalOverflow):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("request failed: %v", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warningf("encode response: %v", err)
	}
}
