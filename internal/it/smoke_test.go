package it

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlclock/internal/hlc"
	"hlclock/internal/logging"
)

func startCluster(t *testing.T, ids ...string) *Cluster {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cluster, err := NewCluster(t.TempDir(), logging.Discard(), ids...)
	require.NoError(t, err)
	t.Cleanup(cluster.Stop)

	require.NoError(t, cluster.StartCluster(ctx), "Failed to start cluster")
	return cluster
}

func TestSmoke_PutGetDelete_SingleKey(t *testing.T) {
	cluster := startCluster(t, "n1", "n2", "n3")
	node1 := cluster.GetNode("n1")
	node2 := cluster.GetNode("n2")
	node3 := cluster.GetNode("n3")

	put, code, err := node1.Put("test-key", "test-value", 3)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code, put.Error)
	assert.Equal(t, 2, put.Replicated)

	got, code, err := node3.Get("test-key", false)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "test-value", got.Value)
	assert.Equal(t, put.Version, got.Version, "replicas keep the writer's version")

	del, code, err := node2.Delete("test-key")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code, del.Error)

	putVersion, err := hlc.ParseTimestamp(put.Version)
	require.NoError(t, err)
	delVersion, err := hlc.ParseTimestamp(del.Version)
	require.NoError(t, err)
	assert.True(t, putVersion.Less(delVersion), "delete on n2 is ordered after the put it observed")

	got, code, err = node1.Get("test-key", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, code)
	assert.True(t, got.Deleted)
}

func TestGossip_PeersBecomeAlive(t *testing.T) {
	cluster := startCluster(t, "n1", "n2", "n3")

	for _, id := range []string{"n1", "n2", "n3"} {
		n := cluster.GetNode(id)
		assert.Eventually(t, func() bool {
			peers, err := n.Peers()
			if err != nil || len(peers) != 2 {
				return false
			}
			for _, p := range peers {
				if p.Status != "ALIVE" {
					return false
				}
			}
			return true
		}, 5*time.Second, 50*time.Millisecond, id)
	}
}

func TestReadRepair_RestartedNodeCatchesUp(t *testing.T) {
	cluster := startCluster(t, "n1", "n2", "n3")
	node1 := cluster.GetNode("n1")
	node3 := cluster.GetNode("n3")

	require.NoError(t, cluster.KillNode("n3"))

	put, code, err := node1.Put("repair-key", "value", 2)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, put.Replicated, "n3 is down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, cluster.RestartNode(ctx, "n3"))

	_, code, err = node3.Get("repair-key", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, code, "restarted node has an empty store")

	got, code, err := node3.Get("repair-key", true)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, put.Version, got.Version)

	got, code, err = node3.Get("repair-key", false)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code, "read repaired the local copy")
	assert.Equal(t, "value", got.Value)
}

func TestRestart_ClockResumesAboveCheckpoint(t *testing.T) {
	cluster := startCluster(t, "n1")
	node1 := cluster.GetNode("n1")

	var last Response
	for i := 0; i < 10; i++ {
		var err error
		last, err = node1.Timestamp()
		require.NoError(t, err)
	}

	require.NoError(t, cluster.KillNode("n1"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, cluster.RestartNode(ctx, "n1"))

	next, err := node1.Timestamp()
	require.NoError(t, err)
	assert.Greater(t, next.Packed, last.Packed)
}
