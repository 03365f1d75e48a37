package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"hlclock/internal/gossip"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "HLC"

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string
	Addr string
}

// PeerList is a list of peers decoded from "id1=addr1,id2=addr2".
type PeerList []Peer

// Decode implements envconfig.Decoder.
func (p *PeerList) Decode(value string) error {
	peers, err := ParsePeers(value)
	if err != nil {
		return err
	}
	*p = peers
	return nil
}

// Config holds the node configuration.
type Config struct {
	NodeID             string        `envconfig:"NODE_ID"`
	ListenAddr         string        `envconfig:"LISTEN_ADDR" default:":50051"`
	HTTPAddr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	Peers              PeerList      `envconfig:"PEERS"`
	DataDir            string        `envconfig:"DATA_DIR"`
	SyncInterval       time.Duration `envconfig:"SYNC_INTERVAL" default:"1s"`
	CheckpointInterval time.Duration `envconfig:"CHECKPOINT_INTERVAL" default:"5s"`
	MaxOffset          time.Duration `envconfig:"MAX_OFFSET" default:"500ms"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from HLC_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return errors.New("node id is required")
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint interval must be positive, got %s", c.CheckpointInterval)
	}
	if c.MaxOffset < 0 {
		return fmt.Errorf("max offset must not be negative, got %s", c.MaxOffset)
	}
	return nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// GossipPeers converts config peers into the syncer's peer list.
// The node itself is skipped if it appears in the list.
func (c *Config) GossipPeers() []gossip.Peer {
	peers := make([]gossip.Peer, 0, len(c.Peers))
	for _, peer := range c.Peers {
		if peer.ID != c.NodeID {
			peers = append(peers, gossip.Peer{
				ID:   peer.ID,
				Addr: peer.Addr,
			})
		}
	}
	return peers
}
