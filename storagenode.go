package dfs

import (
	"dfs/config"
	"dfs/internal/common"
	"dfs/internal/storagenode"
	"net"
	"strconv"
)

// NewStorageNode starts the storage node n of cluster cc. A nil l listens on
// the node's configured address.
func NewStorageNode(cc *config.Configuration, n *config.Node, l net.Listener) (*storagenode.Node, error) {
	capacity, err := config.ParseSize(n.Capacity, 0)
	if err != nil {
		return nil, err
	}
	hb, err := config.ParseDuration(n.Heartbeat, common.HeartbeatInterval)
	if err != nil {
		return nil, err
	}
	port := 0
	if n.Port != "" {
		if port, err = strconv.Atoi(n.Port); err != nil {
			return nil, err
		}
	}
	dir := n.DataDir
	if dir == "" {
		dir = n.ID()
	}
	return storagenode.NewAndServe(storagenode.Config{
		NodeID:            n.ID(),
		Address:           n.Address,
		Port:              port,
		Capacity:          capacity,
		DataDir:           dir,
		Coordinator:       cc.Cluster.Coordinator.Addr(),
		HeartbeatInterval: hb,
	}, l)
}

// MustNewStorageNode starts the storage node with uuid, or DFS_UUID when
// uuid is 0, from the cluster config file.
func MustNewStorageNode(uuid int64) *storagenode.Node {
	cc := config.GetClusterConfig()
	id, err := config.ResolveUUID(uuid)
	if err != nil {
		panic(err)
	}
	n, err := cc.StorageNode(id)
	if err != nil {
		panic(err)
	}
	common.MustOpenLogFile(n.Log)
	if n.Debug != "" {
		common.SetLogLevel(common.ParseLogLevel(n.Debug))
	}
	node, err := NewStorageNode(cc, n, nil)
	if err != nil {
		panic(err)
	}
	return node
}
