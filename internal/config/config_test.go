package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hlclock/internal/gossip"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "n1=127.0.0.1:50051",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50051"},
			},
		},
		{
			name:  "multiple peers",
			input: "n1=127.0.0.1:50051,n2=127.0.0.1:50052,n3=127.0.0.1:50053",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50051"},
				{ID: "n2", Addr: "127.0.0.1:50052"},
				{ID: "n3", Addr: "127.0.0.1:50053"},
			},
		},
		{
			name:  "with spaces",
			input: "n1 = 127.0.0.1:50051 , n2 = 127.0.0.1:50052",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50051"},
				{ID: "n2", Addr: "127.0.0.1:50052"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "n1:127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "n1=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParsePeers() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i].ID != tt.want[i].ID || got[i].Addr != tt.want[i].Addr {
						t.Errorf("ParsePeers()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestConfig_GossipPeers(t *testing.T) {
	cfg := &Config{
		NodeID:     "n1",
		ListenAddr: "127.0.0.1:50051",
		Peers: PeerList{
			{ID: "n1", Addr: "127.0.0.1:50051"},
			{ID: "n2", Addr: "127.0.0.1:50052"},
			{ID: "n3", Addr: "127.0.0.1:50053"},
		},
	}

	want := []gossip.Peer{
		{ID: "n2", Addr: "127.0.0.1:50052"},
		{ID: "n3", Addr: "127.0.0.1:50053"},
	}
	if diff := cmp.Diff(want, cfg.GossipPeers()); diff != "" {
		t.Errorf("GossipPeers() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("HLC_NODE_ID", "n2")
	t.Setenv("HLC_PEERS", "n1=127.0.0.1:50051,n3=127.0.0.1:50053")
	t.Setenv("HLC_SYNC_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		NodeID:             "n2",
		ListenAddr:         ":50051",
		HTTPAddr:           ":8080",
		Peers:              PeerList{{ID: "n1", Addr: "127.0.0.1:50051"}, {ID: "n3", Addr: "127.0.0.1:50053"}},
		SyncInterval:       250 * time.Millisecond,
		CheckpointInterval: 5 * time.Second,
		MaxOffset:          500 * time.Millisecond,
		LogLevel:           "info",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_InvalidPeers(t *testing.T) {
	t.Setenv("HLC_PEERS", "n1")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject a malformed peer list")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{NodeID: "n1", ListenAddr: ":1", SyncInterval: time.Second, CheckpointInterval: time.Second}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing node id", mutate: func(c *Config) { c.NodeID = "" }, wantErr: true},
		{name: "missing listen addr", mutate: func(c *Config) { c.ListenAddr = "" }, wantErr: true},
		{name: "zero sync interval", mutate: func(c *Config) { c.SyncInterval = 0 }, wantErr: true},
		{name: "zero checkpoint interval", mutate: func(c *Config) { c.CheckpointInterval = 0 }, wantErr: true},
		{name: "negative max offset", mutate: func(c *Config) { c.MaxOffset = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
