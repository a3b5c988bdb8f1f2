package master

import (
	"dfs/internal/types"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newClockedRegistry() (*Registry, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	r := NewRegistry(30*time.Second, 10*time.Second)
	r.now = clk.now
	return r, clk
}

func TestRegistryLiveness(t *testing.T) {
	r, clk := newClockedRegistry()
	events := r.Subscribe(8)
	r.Register(types.StorageNodeInfo{NodeID: "a", Capacity: 100})
	r.Register(types.StorageNodeInfo{NodeID: "b", Capacity: 100})
	if ev := <-events; ev.NodeID != "a" || !ev.Alive {
		t.Fatalf("event %+v", ev)
	}
	<-events

	clk.t = clk.t.Add(20 * time.Second)
	r.Heartbeat("a", -1)
	clk.t = clk.t.Add(15 * time.Second)
	// b is 35s old, a is 15s old
	if evs := r.Sweep(); len(evs) != 1 || evs[0].NodeID != "b" || evs[0].Alive {
		t.Fatalf("sweep %+v", evs)
	}
	if ev := <-events; ev.NodeID != "b" || ev.Alive {
		t.Fatalf("event %+v", ev)
	}
	active := r.ActiveNodes()
	if len(active) != 1 || active[0].NodeID != "a" {
		t.Fatalf("active %+v", active)
	}
	if len(r.Nodes()) != 2 {
		t.Fatal("dead node dropped from registry")
	}

	r.Heartbeat("b", -1)
	if ev := <-events; ev.NodeID != "b" || !ev.Alive {
		t.Fatalf("revive event %+v", ev)
	}
	if len(r.ActiveNodes()) != 2 {
		t.Fatal("heartbeat did not revive node")
	}
	r.Stop()
	if _, ok := <-events; ok {
		t.Fatal("subscription not closed by Stop")
	}
}

func TestRegistryUpsertAndUnknown(t *testing.T) {
	r, _ := newClockedRegistry()
	if r.Heartbeat("ghost", 10) {
		t.Fatal("heartbeat from unknown node accepted")
	}
	if len(r.Nodes()) != 0 {
		t.Fatal("heartbeat registered a node")
	}
	r.Register(types.StorageNodeInfo{NodeID: "a", Address: "h1", Port: 1, Capacity: 100, UsedSpace: 10})
	r.Register(types.StorageNodeInfo{NodeID: "a", Address: "h2", Port: 2, Capacity: 200, UsedSpace: 20})
	n, ok := r.Lookup("a")
	if !ok || len(r.Nodes()) != 1 {
		t.Fatal("upsert duplicated node")
	}
	if n.Endpoint() != "h2:2" || n.AvailableSpace != 180 {
		t.Fatalf("node %+v", n)
	}
	if !r.Unregister("a") || r.Unregister("a") {
		t.Fatal("unregister")
	}
}

func TestRegistryUsage(t *testing.T) {
	r, _ := newClockedRegistry()
	r.Register(types.StorageNodeInfo{NodeID: "a", Capacity: 100})
	r.Charge("a", 30)
	if n, _ := r.Lookup("a"); n.UsedSpace != 30 || n.AvailableSpace != 70 {
		t.Fatalf("after charge %+v", n)
	}
	r.Charge("a", -50)
	if n, _ := r.Lookup("a"); n.UsedSpace != 0 || n.AvailableSpace != 100 {
		t.Fatalf("after release %+v", n)
	}
	r.Heartbeat("a", 120)
	if n, _ := r.Lookup("a"); n.UsedSpace != 120 || n.AvailableSpace != 0 {
		t.Fatalf("after reported usage %+v", n)
	}
}

func TestRegistrySweepLoop(t *testing.T) {
	r := NewRegistry(40*time.Millisecond, 10*time.Millisecond)
	r.Register(types.StorageNodeInfo{NodeID: "a"})
	r.Start()
	defer r.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for len(r.ActiveNodes()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never marked the silent node dead")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSelector(t *testing.T) {
	nodes := []types.StorageNodeInfo{
		{NodeID: "c", AvailableSpace: 50, IsAlive: true},
		{NodeID: "a", AvailableSpace: 50, IsAlive: true},
		{NodeID: "big", AvailableSpace: 500, IsAlive: true},
		{NodeID: "dead", AvailableSpace: 900, IsAlive: false},
		{NodeID: "b", AvailableSpace: 10, IsAlive: true},
	}
	got := rank(nodes, 3)
	want := []string{"big", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %v want %v", got, want)
		}
	}
	if all := rank(nodes, 10); len(all) != 4 {
		t.Fatalf("rank with too few nodes %v", all)
	}
	if none := rank(nodes, 0); len(none) != 0 {
		t.Fatal("rank 0")
	}
}

func TestSelectorUnbounded(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	r.Register(types.StorageNodeInfo{NodeID: "full", Capacity: 100, UsedSpace: 100})
	r.Register(types.StorageNodeInfo{NodeID: "roomy", Capacity: 1 << 30})
	r.Register(types.StorageNodeInfo{NodeID: "u1"})
	r.Register(types.StorageNodeInfo{NodeID: "u2"})
	if n, _ := r.Lookup("u1"); n.AvailableSpace != -1 {
		t.Fatalf("unbounded available %d", n.AvailableSpace)
	}
	if n, _ := r.Lookup("full"); n.AvailableSpace != 0 {
		t.Fatalf("full available %d", n.AvailableSpace)
	}
	s := NewSelector(r)
	if got := s.Select(3); got[0] != "u1" || got[1] != "u2" || got[2] != "roomy" {
		t.Fatalf("select %v", got)
	}
	// usage spreads chunks over unbounded nodes
	r.Charge("u1", 10)
	if n, _ := r.Lookup("u1"); n.AvailableSpace != -1 || n.UsedSpace != 10 {
		t.Fatalf("charged unbounded %+v", n)
	}
	if got := s.Select(1); got[0] != "u2" {
		t.Fatalf("select after charge %v", got)
	}
}
