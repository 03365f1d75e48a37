package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"hlclock/internal/hlc"
	"hlclock/internal/quorum"
	"hlclock/internal/repair"
)

const maxValueSize = 1 << 20

var errKeyMissing = errors.New("key cannot be empty")

type valueResponse struct {
	Key        string        `json:"key"`
	Value      string        `json:"value,omitempty"`
	Version    hlc.Timestamp `json:"version,omitempty"`
	Deleted    bool          `json:"deleted,omitempty"`
	Replicated int           `json:"replicated,omitempty"`
	Conflicts  []string      `json:"conflicts,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.Keys())
}

func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.writeError(w, http.StatusBadRequest, errKeyMissing)
		return
	}

	if r.URL.Query().Get("read") == "all" {
		h.readAll(w, r, key)
		return
	}

	vv := h.store.Get(key)
	if vv == nil {
		h.writeJSON(w, http.StatusNotFound, valueResponse{Key: key, Error: "key does not exist"})
		return
	}
	h.writeValue(w, key, repair.VersionedValue{Value: vv.Value, Version: vv.Version, Deleted: vv.Deleted})
}

func (h *Handler) writeValue(w http.ResponseWriter, key string, vv repair.VersionedValue) {
	if vv.Deleted {
		h.writeJSON(w, http.StatusNotFound, valueResponse{Key: key, Version: vv.Version, Deleted: true, Error: "key does not exist"})
		return
	}
	h.writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: string(vv.Value), Version: vv.Version})
}

// replicas returns this node followed by its peers in ID order, and the
// peer addresses.
func (h *Handler) replicas() ([]string, map[string]string) {
	ids := []string{h.nodeID}
	if h.peers == nil || h.remote == nil {
		return ids, nil
	}
	addrs := h.peers.Addrs()
	peerIDs := make([]string, 0, len(addrs))
	for id := range addrs {
		peerIDs = append(peerIDs, id)
	}
	sort.Strings(peerIDs)
	return append(ids, peerIDs...), addrs
}

// parseQuorum reads a replica count query parameter. It defaults to 1, which
// is this node alone.
func parseQuorum(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func quorumStatus(err error) int {
	if errors.Is(err, quorum.ErrQuorumNotMet) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

// readAll reads key from this node and every peer, answers with the newest
// version and repairs the replicas that returned an older one or nothing.
func (h *Handler) readAll(w http.ResponseWriter, r *http.Request, key string) {
	required, err := parseQuorum(r, "r")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, addrs := h.replicas()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	read := quorum.DoReadAll(ctx, ids, required, func(ctx context.Context, id string) (repair.VersionedValue, bool, error) {
		if id == h.nodeID {
			vv := h.store.Get(key)
			if vv == nil {
				return repair.VersionedValue{}, false, nil
			}
			return repair.VersionedValue{Value: vv.Value, Version: vv.Version, Deleted: vv.Deleted}, true, nil
		}
		return h.remote.Fetch(ctx, addrs[id], key)
	})
	if !read.Success {
		h.writeError(w, quorumStatus(read.Err), read.Err)
		return
	}
	if read.Err != nil {
		h.logger.Warningf("read of %s is missing replicas: %v", key, read.Err)
	}

	var (
		values     []repair.VersionedValue
		replicaIDs []string
		missing    []string
	)
	for _, v := range read.Values {
		if !v.Found {
			missing = append(missing, v.ReplicaID)
			continue
		}
		values = append(values, v.Value)
		replicaIDs = append(replicaIDs, v.ReplicaID)
	}

	result := repair.Reconcile(values, replicaIDs)
	if result.IsNotFound() {
		h.writeJSON(w, http.StatusNotFound, valueResponse{Key: key, Error: "key does not exist"})
		return
	}
	if result.HasConflict() {
		conflicts := make([]string, 0, len(result.Winners))
		for _, c := range result.Winners {
			conflicts = append(conflicts, string(c.Value))
		}
		sort.Strings(conflicts)
		h.writeJSON(w, http.StatusConflict, valueResponse{
			Key:       key,
			Version:   result.Winners[0].Version,
			Conflicts: conflicts,
			Error:     hlc.ErrAmbiguousMerge.Error(),
		})
		return
	}

	winner := result.Winners[0]
	for _, id := range missing {
		result.Stale[id] = repair.VersionedValue{}
	}
	if _, stale := result.Stale[h.nodeID]; stale {
		delete(result.Stale, h.nodeID)
		if err := h.store.PutRepair(key, winner.Value, winner.Version, winner.Deleted); err != nil {
			h.logger.Warningf("local repair of %s failed: %v", key, err)
		}
	}
	if h.repairer != nil {
		h.repairer.Repair(key, result, addrs)
	}

	h.writeValue(w, key, winner)
}

func (h *Handler) putKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.writeError(w, http.StatusBadRequest, errKeyMissing)
		return
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("read value: %w", err))
		return
	}
	if len(value) == 0 {
		h.writeError(w, http.StatusBadRequest, errors.New("value cannot be empty"))
		return
	}

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ttl %q", raw))
			return
		}
	}

	required, ok := h.writeQuorum(w, r)
	if !ok {
		return
	}

	version, err := h.store.Put(key, value, ttl)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeReplicated(w, valueResponse{Key: key, Value: string(value), Version: version},
		h.replicate(r.Context(), key, repair.VersionedValue{Value: value, Version: version}, required))
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.writeError(w, http.StatusBadRequest, errKeyMissing)
		return
	}

	required, ok := h.writeQuorum(w, r)
	if !ok {
		return
	}

	existing := h.store.Get(key)
	if existing == nil || existing.Deleted {
		h.writeJSON(w, http.StatusNotFound, valueResponse{Key: key, Error: "key does not exist"})
		return
	}

	version, err := h.store.Delete(key)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeReplicated(w, valueResponse{Key: key, Version: version, Deleted: true},
		h.replicate(r.Context(), key, repair.VersionedValue{Version: version, Deleted: true}, required))
}

// writeQuorum parses ?w= and checks it against the replica count before
// anything is written.
func (h *Handler) writeQuorum(w http.ResponseWriter, r *http.Request) (int, bool) {
	required, err := parseQuorum(r, "w")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return 0, false
	}
	if ids, _ := h.replicas(); required > len(ids) {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("required w=%d exceeds replica count=%d", required, len(ids)))
		return 0, false
	}
	return required, true
}

// replicate sends vv to every peer. The local write counts as one ack, and
// the call returns once required acks arrived; slower peers are still
// written in the background.
func (h *Handler) replicate(ctx context.Context, key string, vv repair.VersionedValue, required int) quorum.WriteResult {
	ids, addrs := h.replicas()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result := quorum.DoWrite(ctx, ids, required, func(ctx context.Context, id string) error {
		if id == h.nodeID {
			return nil
		}
		return h.remote.Replicate(ctx, addrs[id], key, vv)
	})
	if result.Err != nil {
		h.logger.Warningf("write of %s not fully replicated: %v", key, result.Err)
	}
	return result
}

func (h *Handler) writeReplicated(w http.ResponseWriter, resp valueResponse, result quorum.WriteResult) {
	resp.Replicated = result.Acks - 1
	if !result.Success {
		resp.Error = result.Err.Error()
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
