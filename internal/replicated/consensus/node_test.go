package consensus

import (
	"testing"
	"time"
)

func TestConfigNormalized(t *testing.T) {
	cfg, err := Config{
		NodeID:   " node-1 ",
		RaftAddr: "127.0.0.1:17000",
		DataDir:  "/tmp/ledgernode/node-1",
	}.normalized()
	if err != nil {
		t.Fatalf("normalized: %v", err)
	}
	if cfg.NodeID != "node-1" {
		t.Fatalf("node id = %q, want trimmed", cfg.NodeID)
	}
	if cfg.SnapshotRetain != 2 {
		t.Fatalf("snapshot retain = %d, want 2", cfg.SnapshotRetain)
	}
	if cfg.SnapshotThreshold != 16384 {
		t.Fatalf("snapshot threshold = %d, want 16384", cfg.SnapshotThreshold)
	}
	if cfg.ApplyTimeout != 5*time.Second {
		t.Fatalf("apply timeout = %s, want 5s", cfg.ApplyTimeout)
	}
	if cfg.MembershipTimeout != 10*time.Second {
		t.Fatalf("membership timeout = %s, want 10s", cfg.MembershipTimeout)
	}
	if cfg.TransportPool != 3 || cfg.TransportTimeout != 10*time.Second {
		t.Fatalf("transport = (%d, %s), want (3, 10s)", cfg.TransportPool, cfg.TransportTimeout)
	}
}

func TestConfigNormalizedRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no node id", Config{RaftAddr: "127.0.0.1:17000", DataDir: "x"}},
		{"no raft addr", Config{NodeID: "node-1", DataDir: "x"}},
		{"no data dir", Config{NodeID: "node-1", RaftAddr: "127.0.0.1:17000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.cfg.normalized(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
