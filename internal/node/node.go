// Package node wires the clock, its store and the network surfaces of one
// cluster member.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"hlclock/internal/api"
	"hlclock/internal/checkpoint"
	"hlclock/internal/clock"
	"hlclock/internal/config"
	"hlclock/internal/gossip"
	"hlclock/internal/hlc"
	"hlclock/internal/logging"
	"hlclock/internal/storage"
	"hlclock/internal/transport"
)

// Option configures a Node.
type Option func(*options)

type options struct {
	wall     hlc.WallClock
	dialOpts []grpc.DialOption
}

// WithWallClock replaces the system clock, mostly for tests.
func WithWallClock(w hlc.WallClock) Option {
	return func(o *options) {
		o.wall = w
	}
}

// WithDialOptions adds options to every connection made to a peer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// Node represents a single node in the cluster.
type Node struct {
	cfg        *config.Config
	logger     logging.Logger
	checkpoint *checkpoint.Store
	clock      *clock.Clock
	store      *storage.InMemoryStore
	clients    *transport.ClientManager
	syncer     *gossip.Syncer
	registry   *prometheus.Registry
	grpcServer *grpc.Server
	httpServer *http.Server

	grpcLis net.Listener
	httpLis net.Listener

	stopOnce sync.Once
	stopErr  error
}

// New builds a node from cfg. Nothing listens until Listen or Run is called.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{wall: hlc.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.WithField("node", cfg.NodeID)

	cp, err := checkpoint.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	floor := cp.Load()

	c, err := clock.New(o.wall, clock.WithFloor(floor), clock.WithMaxOffset(cfg.MaxOffset))
	if err != nil {
		cp.Close()
		return nil, err
	}
	if !floor.IsZero() {
		logger.Infof("restored clock floor %s, starting at %s", floor, c.Last())
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		cp.Close()
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	for _, m := range c.Metrics() {
		if err := registry.Register(m); err != nil {
			cp.Close()
			return nil, fmt.Errorf("register clock metrics: %w", err)
		}
	}

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		checkpoint: cp,
		clock:      c,
		store:      storage.NewInMemoryStore(c),
		clients:    transport.NewClientManager(o.dialOpts...),
		registry:   registry,
	}
	n.syncer = gossip.NewSyncer(cfg.NodeID, cfg.GossipPeers(), c, n.exchange, cfg.SyncInterval, logger)

	n.grpcServer = grpc.NewServer()
	transport.RegisterClockServer(n.grpcServer, transport.NewServer(c, n.store, logger))

	handler := api.New(cfg.NodeID, c, n.store, logger,
		api.WithPeers(n.syncer, n.clients),
		api.WithGatherer(registry),
	)
	r := mux.NewRouter()
	handler.Route(r)
	n.httpServer = &http.Server{
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return n, nil
}

// Clock returns the node clock.
func (n *Node) Clock() *clock.Clock {
	return n.clock
}

// Store returns the node's key-value store.
func (n *Node) Store() storage.Store {
	return n.store
}

// Syncer returns the peer synchronizer.
func (n *Node) Syncer() *gossip.Syncer {
	return n.syncer
}

// Listen binds the gRPC and, if configured, HTTP addresses.
func (n *Node) Listen() error {
	if n.grpcLis != nil {
		return nil
	}
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	if n.cfg.HTTPAddr != "" {
		httpLis, err := net.Listen("tcp", n.cfg.HTTPAddr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.HTTPAddr, err)
		}
		n.httpLis = httpLis
	}
	n.grpcLis = lis
	return nil
}

// Addr returns the bound gRPC address, or nil before Listen.
func (n *Node) Addr() net.Addr {
	if n.grpcLis == nil {
		return nil
	}
	return n.grpcLis.Addr()
}

// HTTPAddr returns the bound HTTP address, or nil if HTTP is disabled.
func (n *Node) HTTPAddr() net.Addr {
	if n.httpLis == nil {
		return nil
	}
	return n.httpLis.Addr()
}

// Run serves until ctx is canceled or a server fails, then stops the node.
// Cancel ctx to shut the node down.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.logger.Infof("serving gRPC on %s", n.grpcLis.Addr())
		if err := n.grpcServer.Serve(n.grpcLis); err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	if n.httpLis != nil {
		g.Go(func() error {
			n.logger.Infof("serving HTTP on %s", n.httpLis.Addr())
			if err := n.httpServer.Serve(n.httpLis); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve http: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		n.checkpointLoop(ctx)
		return nil
	})

	n.syncer.Start()

	g.Go(func() error {
		<-ctx.Done()
		n.shutdown()
		return nil
	})

	err := g.Wait()
	if stopErr := n.Stop(); stopErr != nil {
		err = multierror.Append(err, stopErr).ErrorOrNil()
	}
	return err
}

func (n *Node) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.saveCheckpoint(); err != nil {
				n.logger.Warningf("checkpoint failed: %v", err)
			}
		}
	}
}

func (n *Node) saveCheckpoint() error {
	ts := n.clock.Last()
	saved, err := n.checkpoint.Save(ts)
	if err != nil {
		return err
	}
	if saved {
		n.logger.Debugf("checkpoint saved at %s", ts)
	}
	return nil
}

// shutdown stops accepting work; the servers' Serve calls return after it.
func (n *Node) shutdown() {
	n.logger.Infof("stopping node")
	n.syncer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.httpServer.Shutdown(ctx); err != nil {
		n.logger.Warningf("http shutdown: %v", err)
	}
	n.grpcServer.GracefulStop()
}

// Stop saves a final checkpoint and releases every resource. Run calls it on
// the way out, so it is only needed for a node that was never run. It is safe
// to call more than once.
func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		n.shutdown()

		var result *multierror.Error
		if err := n.saveCheckpoint(); err != nil {
			result = multierror.Append(result, fmt.Errorf("final checkpoint: %w", err))
		}
		if err := n.clients.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := n.checkpoint.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close checkpoint: %w", err))
		}
		// Serve closes the listeners when it runs; these cover Listen without Run.
		if n.grpcLis != nil {
			n.grpcLis.Close()
		}
		if n.httpLis != nil {
			n.httpLis.Close()
		}
		n.stopErr = result.ErrorOrNil()
	})
	return n.stopErr
}

// exchange is the gossip.ExchangeFunc backed by the gRPC clients.
func (n *Node) exchange(ctx context.Context, addr string, ts hlc.Timestamp) (hlc.Timestamp, error) {
	client, err := n.clients.GetClient(addr)
	if err != nil {
		return 0, err
	}
	return client.Exchange(ctx, ts)
}
