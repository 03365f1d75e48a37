// Package it runs small in-process clusters for integration tests.
package it

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"hlclock/internal/config"
	"hlclock/internal/logging"
	"hlclock/internal/node"
)

// Cluster represents a test cluster of nodes
type Cluster struct {
	nodes   []*Node
	dataDir string
	logger  logging.Logger
	mu      sync.Mutex
}

// Node represents a single node in the test cluster
type Node struct {
	ID       string
	Addr     string
	HTTPAddr string
	cfg      *config.Config
	node     *node.Node
	cancel   context.CancelFunc
	errc     chan error
	http     *http.Client
}

// NewCluster reserves addresses for the given node IDs. Each node keeps its
// checkpoint under dataDir, so a restarted node resumes its clock.
func NewCluster(dataDir string, logger logging.Logger, ids ...string) (*Cluster, error) {
	c := &Cluster{dataDir: dataDir, logger: logger}
	for _, id := range ids {
		addr, err := freeAddr()
		if err != nil {
			return nil, err
		}
		httpAddr, err := freeAddr()
		if err != nil {
			return nil, err
		}
		c.nodes = append(c.nodes, &Node{
			ID:       id,
			Addr:     addr,
			HTTPAddr: httpAddr,
			http:     &http.Client{Timeout: 5 * time.Second},
		})
	}

	peers := make(config.PeerList, 0, len(c.nodes))
	for _, n := range c.nodes {
		peers = append(peers, config.Peer{ID: n.ID, Addr: n.Addr})
	}
	for _, n := range c.nodes {
		n.cfg = &config.Config{
			NodeID:             n.ID,
			ListenAddr:         n.Addr,
			HTTPAddr:           n.HTTPAddr,
			Peers:              peers,
			DataDir:            filepath.Join(dataDir, n.ID),
			SyncInterval:       50 * time.Millisecond,
			CheckpointInterval: 50 * time.Millisecond,
			MaxOffset:          time.Second,
			LogLevel:           "debug",
		}
	}
	return c, nil
}

func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("reserve port: %w", err)
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

// StartCluster starts every node and waits until each answers over HTTP.
func (c *Cluster) StartCluster(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if err := c.start(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cluster) start(ctx context.Context, n *Node) error {
	nd, err := node.New(n.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create node %s: %w", n.ID, err)
	}
	if err := nd.Listen(); err != nil {
		nd.Stop()
		return fmt.Errorf("failed to start node %s: %w", n.ID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	n.node = nd
	n.cancel = cancel
	n.errc = make(chan error, 1)
	go func() { n.errc <- nd.Run(runCtx) }()

	return c.waitForReady(ctx, n, 10*time.Second)
}

func (c *Cluster) waitForReady(ctx context.Context, n *Node, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := n.Timestamp(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("node %s not ready: %w", n.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop stops all nodes in the cluster
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		n.Stop()
	}
}

// Stop stops the node and waits for it to release its resources.
func (n *Node) Stop() error {
	if n.cancel == nil {
		return nil
	}
	n.cancel()
	err := <-n.errc
	n.cancel = nil
	n.node = nil
	return err
}

// Node returns the running node, or nil while it is stopped.
func (n *Node) Node() *node.Node {
	return n.node
}

// GetNode returns a node by ID
func (c *Cluster) GetNode(nodeID string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.ID == nodeID {
			return n
		}
	}
	return nil
}

// KillNode stops a node.
func (c *Cluster) KillNode(nodeID string) error {
	n := c.GetNode(nodeID)
	if n == nil {
		return fmt.Errorf("node %s not found", nodeID)
	}
	return n.Stop()
}

// RestartNode starts a stopped node again with the same configuration.
func (c *Cluster) RestartNode(ctx context.Context, nodeID string) error {
	n := c.GetNode(nodeID)
	if n == nil {
		return fmt.Errorf("node %s not found", nodeID)
	}
	if n.cancel != nil {
		return fmt.Errorf("node %s is still running", nodeID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start(ctx, n)
}

// Response is the JSON body returned by the HTTP API.
type Response struct {
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Version    string   `json:"version"`
	Deleted    bool     `json:"deleted"`
	Replicated int      `json:"replicated"`
	Conflicts  []string `json:"conflicts"`
	Error      string   `json:"error"`

	Timestamp string `json:"timestamp"`
	Packed    uint64 `json:"packed"`
}

// PeerState is one entry of GET /peers.
type PeerState struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (n *Node) do(method, path string, body string, out interface{}) (int, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, "http://"+n.HTTPAddr+path, rd)
	if err != nil {
		return 0, err
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

// Timestamp records a local event on the node.
func (n *Node) Timestamp() (Response, error) {
	var out Response
	code, err := n.do(http.MethodPost, "/timestamp", "", &out)
	if err == nil && code != http.StatusOK {
		err = fmt.Errorf("POST /timestamp: status %d: %s", code, out.Error)
	}
	return out, err
}

// Put writes key on the node and waits for w replica acks (0 keeps the
// server default).
func (n *Node) Put(key, value string, w int) (Response, int, error) {
	path := "/kv/" + key
	if w > 0 {
		path += "?w=" + strconv.Itoa(w)
	}
	var out Response
	code, err := n.do(http.MethodPut, path, value, &out)
	return out, code, err
}

// Get reads key from the node. With readAll every peer is consulted.
func (n *Node) Get(key string, readAll bool) (Response, int, error) {
	path := "/kv/" + key
	if readAll {
		path += "?read=all"
	}
	var out Response
	code, err := n.do(http.MethodGet, path, "", &out)
	return out, code, err
}

// Delete removes key on the node.
func (n *Node) Delete(key string) (Response, int, error) {
	var out Response
	code, err := n.do(http.MethodDelete, "/kv/"+key, "", &out)
	return out, code, err
}

// Peers returns the node's gossip view.
func (n *Node) Peers() ([]PeerState, error) {
	var out []PeerState
	_, err := n.do(http.MethodGet, "/peers", "", &out)
	return out, err
}
