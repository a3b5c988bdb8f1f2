package master

import (
	"dfs/internal/common"
	"dfs/internal/types"
	"sort"
	"sync"
	"time"
)

// Registry tracks storage nodes and their liveness. IsAlive is recomputed by
// a periodic sweep rather than on every query.
type Registry struct {
	sync.RWMutex
	nodes    map[string]*types.StorageNodeInfo
	window   time.Duration
	interval time.Duration
	now      func() time.Time

	subMu sync.Mutex
	subs  []chan types.NodeEvent

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewRegistry(window, interval time.Duration) *Registry {
	if window <= 0 {
		window = common.AliveWindow
	}
	if interval <= 0 {
		interval = window / 3
	}
	return &Registry{
		nodes:    make(map[string]*types.StorageNodeInfo),
		window:   window,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Register upserts info keyed by NodeID. Registering counts as a heartbeat.
func (r *Registry) Register(info types.StorageNodeInfo) {
	r.Lock()
	now := r.now()
	n, ok := r.nodes[info.NodeID]
	if !ok {
		n = &types.StorageNodeInfo{NodeID: info.NodeID}
		r.nodes[info.NodeID] = n
	}
	wasAlive := ok && n.IsAlive
	n.Address = info.Address
	n.Port = info.Port
	n.Capacity = info.Capacity
	n.UsedSpace = info.UsedSpace
	n.AvailableSpace = available(info.Capacity, info.UsedSpace)
	n.LastHeartbeat = now
	n.IsAlive = true
	r.Unlock()

	if ok {
		common.LInfo("node %v re-registered at %v", info.NodeID, n.Endpoint())
	} else {
		common.LInfo("node %v registered at %v capacity %v", info.NodeID, n.Endpoint(), info.Capacity)
	}
	if !wasAlive {
		r.emit(types.NodeEvent{NodeID: info.NodeID, Alive: true, At: now})
	}
}

func (r *Registry) Unregister(nodeID string) bool {
	r.Lock()
	_, ok := r.nodes[nodeID]
	delete(r.nodes, nodeID)
	r.Unlock()
	if ok {
		common.LInfo("node %v unregistered", nodeID)
		r.emit(types.NodeEvent{NodeID: nodeID, Alive: false, At: r.now()})
	}
	return ok
}

// Heartbeat refreshes nodeID. Unknown nodes are ignored. A negative used
// keeps the coordinator's own usage estimate.
func (r *Registry) Heartbeat(nodeID string, used int64) bool {
	r.Lock()
	n, ok := r.nodes[nodeID]
	if !ok {
		r.Unlock()
		common.LTrace("heartbeat from unknown node %v ignored", nodeID)
		return false
	}
	now := r.now()
	revived := !n.IsAlive
	n.LastHeartbeat = now
	n.IsAlive = true
	if used >= 0 {
		n.UsedSpace = used
		n.AvailableSpace = available(n.Capacity, used)
	}
	r.Unlock()
	if revived {
		r.emit(types.NodeEvent{NodeID: nodeID, Alive: true, At: now})
	}
	return true
}

// Charge adds delta bytes to the usage estimate of nodeID.
func (r *Registry) Charge(nodeID string, delta int64) {
	r.Lock()
	defer r.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return
	}
	n.UsedSpace += delta
	if n.UsedSpace < 0 {
		n.UsedSpace = 0
	}
	n.AvailableSpace = available(n.Capacity, n.UsedSpace)
}

// available is -1 for a node without a capacity bound.
func available(capacity, used int64) int64 {
	if capacity <= 0 {
		return -1
	}
	if used >= capacity {
		return 0
	}
	return capacity - used
}

func (r *Registry) ActiveNodes() []types.StorageNodeInfo {
	r.RLock()
	defer r.RUnlock()
	out := make([]types.StorageNodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.IsAlive {
			out = append(out, *n)
		}
	}
	sortNodes(out)
	return out
}

// Nodes returns every registered node, dead or alive.
func (r *Registry) Nodes() []types.StorageNodeInfo {
	r.RLock()
	defer r.RUnlock()
	out := make([]types.StorageNodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sortNodes(out)
	return out
}

func (r *Registry) Lookup(nodeID string) (types.StorageNodeInfo, bool) {
	r.RLock()
	defer r.RUnlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return types.StorageNodeInfo{}, false
	}
	return *n, true
}

func sortNodes(nodes []types.StorageNodeInfo) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
}

// Sweep recomputes IsAlive for every node and returns the transitions.
func (r *Registry) Sweep() []types.NodeEvent {
	r.Lock()
	now := r.now()
	var events []types.NodeEvent
	for id, n := range r.nodes {
		alive := now.Sub(n.LastHeartbeat) < r.window
		if alive != n.IsAlive {
			n.IsAlive = alive
			events = append(events, types.NodeEvent{NodeID: id, Alive: alive, At: now})
		}
	}
	r.Unlock()
	for _, ev := range events {
		if ev.Alive {
			common.LInfo("node %v is alive again", ev.NodeID)
		} else {
			common.LWarn("node %v missed heartbeats for %v, marked dead", ev.NodeID, r.window)
		}
		r.emit(ev)
	}
	return events
}

// Subscribe returns a channel of liveness transitions. Events are dropped
// when the subscriber falls more than buf events behind. The channel is
// closed by Stop.
func (r *Registry) Subscribe(buf int) <-chan types.NodeEvent {
	ch := make(chan types.NodeEvent, buf)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) emit(ev types.NodeEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			common.LWarn("node event %+v dropped, subscriber is slow", ev)
		}
	}
}

// Start launches the liveness sweep.
func (r *Registry) Start() {
	r.Lock()
	if r.started {
		r.Unlock()
		return
	}
	r.started = true
	r.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		common.LInfo("node sweep every %v, alive window %v", r.interval, r.window)
		for {
			select {
			case <-ticker.C:
				r.Sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep, waits for it and closes subscriber channels.
func (r *Registry) Stop() {
	r.Lock()
	select {
	case <-r.stop:
		r.Unlock()
		return
	default:
		close(r.stop)
	}
	r.Unlock()
	r.wg.Wait()

	r.subMu.Lock()
	for _, ch := range r.subs {
		close(ch)
	}
	r.subs = nil
	r.subMu.Unlock()
}
