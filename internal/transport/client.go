package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"hlclock/internal/hlc"
	"hlclock/internal/repair"
)

// Client calls the hlc.v1.Clock service of one peer.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an established connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Now returns the peer's current timestamp.
func (c *Client) Now(ctx context.Context) (hlc.Timestamp, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.conn.Invoke(ctx, nowMethod, &emptypb.Empty{}, out); err != nil {
		return 0, fromStatus(err)
	}
	return hlc.Unpack(out.GetValue())
}

// Exchange sends ts to the peer and returns the peer's merged timestamp.
func (c *Client) Exchange(ctx context.Context, ts hlc.Timestamp) (hlc.Timestamp, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.conn.Invoke(ctx, exchangeMethod, wrapperspb.UInt64(uint64(ts)), out); err != nil {
		return 0, fromStatus(err)
	}
	return hlc.Unpack(out.GetValue())
}

// Replicate writes vv under key on the peer without restamping it.
func (c *Client) Replicate(ctx context.Context, key string, vv repair.VersionedValue) error {
	if err := c.conn.Invoke(ctx, replicateMethod, valueToStruct(key, vv), new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Fetch reads the peer's version of key. found is false if the peer has no
// entry for it.
func (c *Client) Fetch(ctx context.Context, key string) (vv repair.VersionedValue, found bool, err error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fetchMethod, wrapperspb.String(key), out); err != nil {
		return repair.VersionedValue{}, false, fromStatus(err)
	}
	if !out.GetFields()[fieldFound].GetBoolValue() {
		return repair.VersionedValue{}, false, nil
	}
	_, vv, err = structToValue(out)
	if err != nil {
		return repair.VersionedValue{}, false, err
	}
	return vv, true, nil
}

// ClientManager manages gRPC clients to peer nodes.
type ClientManager struct {
	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	clients  map[string]*Client
	dialOpts []grpc.DialOption
}

var _ repair.Replicator = (*ClientManager)(nil)

// NewClientManager creates a new client manager. Connections use insecure
// credentials unless opts override them.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		conns:    make(map[string]*grpc.ClientConn),
		clients:  make(map[string]*Client),
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}
}

// GetClient returns a client for the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) GetClient(addr string) (*Client, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := grpc.NewClient(addr, cm.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client = NewClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Replicate implements repair.Replicator.
func (cm *ClientManager) Replicate(ctx context.Context, addr, key string, vv repair.VersionedValue) error {
	client, err := cm.GetClient(addr)
	if err != nil {
		return err
	}
	return client.Replicate(ctx, key, vv)
}

// Fetch reads key from the peer at addr.
func (cm *ClientManager) Fetch(ctx context.Context, addr, key string) (repair.VersionedValue, bool, error) {
	client, err := cm.GetClient(addr)
	if err != nil {
		return repair.VersionedValue{}, false, err
	}
	return client.Fetch(ctx, key)
}

// Close closes all client connections.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var result *multierror.Error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", addr, err))
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]*Client)
	return result.ErrorOrNil()
}
