package gossip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"hlclock/internal/hlc"
	"hlclock/internal/logging"
)

// PeerStatus represents the health of a peer as seen by the last rounds.
type PeerStatus int

const (
	Unknown PeerStatus = iota
	Alive
	Suspect
)

// String returns the string representation of PeerStatus.
func (s PeerStatus) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case Suspect:
		return "SUSPECT"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PeerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PeerStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ALIVE":
		*s = Alive
	case "SUSPECT":
		*s = Suspect
	case "UNKNOWN":
		*s = Unknown
	default:
		return fmt.Errorf("unknown peer status %q", text)
	}
	return nil
}

// Peer is a remote node to synchronize with.
type Peer struct {
	ID   string
	Addr string
}

// PeerState is the last known state of a peer.
type PeerState struct {
	ID         string        `json:"id"`
	Addr       string        `json:"addr"`
	Status     PeerStatus    `json:"status"`
	LastRemote hlc.Timestamp `json:"last_remote"`
	LastSync   time.Time     `json:"last_sync"`
	Failures   int           `json:"failures"`
	LastError  string        `json:"last_error,omitempty"`
}

// Clock is the part of the node clock the syncer needs.
type Clock interface {
	Advance() (hlc.Timestamp, error)
	Update(remote hlc.Timestamp) (hlc.Timestamp, error)
}

// ExchangeFunc sends ts to the peer at addr and returns the peer's merged
// timestamp.
type ExchangeFunc func(ctx context.Context, addr string, ts hlc.Timestamp) (hlc.Timestamp, error)

// Syncer periodically exchanges timestamps with a fixed set of peers.
type Syncer struct {
	mu       sync.RWMutex
	localID  string
	peers    map[string]*PeerState
	clock    Clock
	exchange ExchangeFunc
	interval time.Duration
	logger   logging.Logger

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncer creates a syncer. Peers with the local ID are skipped.
func NewSyncer(localID string, peers []Peer, clock Clock, exchange ExchangeFunc, interval time.Duration, logger logging.Logger) *Syncer {
	if interval <= 0 {
		interval = 1 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Syncer{
		localID:  localID,
		peers:    make(map[string]*PeerState),
		clock:    clock,
		exchange: exchange,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, p := range peers {
		if p.ID == localID {
			continue
		}
		s.peers[p.ID] = &PeerState{ID: p.ID, Addr: p.Addr}
	}
	return s
}

// Start runs a synchronization round every interval until Stop is called.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(s.ctx, s.interval)
				if err := s.SyncOnce(ctx); err != nil {
					s.logger.Debugf("[%s] sync round: %v", s.localID, err)
				}
				cancel()
			}
		}
	}()
}

// Stop stops the background loop and waits for it to exit.
func (s *Syncer) Stop() {
	s.cancel()
	s.wg.Wait()
}

// SyncOnce exchanges timestamps with every peer in ID order. Peers are
// visited one at a time: a lagging peer answers with our own timestamp plus
// one, which would collide with a concurrent send to another peer. Failures
// are recorded per peer and returned together.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	var result *multierror.Error
	for _, p := range s.Snapshot() {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		remote, err := s.syncPeer(ctx, Peer{ID: p.ID, Addr: p.Addr})
		s.record(p.ID, remote, err)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("peer %s: %w", p.ID, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Syncer) syncPeer(ctx context.Context, p Peer) (hlc.Timestamp, error) {
	sent, err := s.clock.Advance()
	if err != nil {
		return 0, fmt.Errorf("advance: %w", err)
	}
	remote, err := s.exchange(ctx, p.Addr, sent)
	if err != nil {
		return 0, fmt.Errorf("exchange: %w", err)
	}
	if _, err := s.clock.Update(remote); err != nil {
		return remote, fmt.Errorf("merge %s: %w", remote, err)
	}
	return remote, nil
}

func (s *Syncer) record(id string, remote hlc.Timestamp, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[id]
	if !ok {
		return
	}
	if !remote.IsZero() {
		p.LastRemote = remote
	}
	if errors.Is(err, hlc.ErrAmbiguousMerge) {
		// The peer answered; only the timestamps collided.
		s.logger.Warningf("[%s] Exchange with %s collided: %v", s.localID, id, err)
		p.Status = Alive
		p.LastSync = time.Now()
		p.Failures = 0
		p.LastError = err.Error()
		return
	}
	if err != nil {
		p.Failures++
		p.LastError = err.Error()
		if p.Status != Suspect {
			s.logger.Warningf("[%s] Marked %s as SUSPECT: %v", s.localID, id, err)
		}
		p.Status = Suspect
		return
	}
	p.Status = Alive
	p.LastSync = time.Now()
	p.Failures = 0
	p.LastError = ""
}

// Snapshot returns the state of all peers sorted by ID.
func (s *Syncer) Snapshot() []PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PeerState, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Addrs returns the peer addresses keyed by peer ID.
func (s *Syncer) Addrs() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.peers))
	for id, p := range s.peers {
		out[id] = p.Addr
	}
	return out
}
