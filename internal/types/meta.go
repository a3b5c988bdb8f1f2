package types

import (
	"strconv"
	"time"
)

type Path string
type Addr string

// FileChunk describes one contiguous byte range of a file.
type FileChunk struct {
	ChunkID      string
	ChunkIndex   int
	Size         int64
	Checksum     string
	ReplicaNodes []string
}

// FileMetadata is the namespace entry of one logical file. Chunks are ordered
// by ChunkIndex and cover [0, NumChunks) without gaps.
type FileMetadata struct {
	FileID            string
	Filename          string
	Path              Path
	TotalSize         int64
	ChunkSize         int64
	NumChunks         int
	ReplicationFactor int
	CreatedAt         time.Time
	ModifiedAt        time.Time
	Chunks            []FileChunk
}

func (md FileMetadata) Clone() FileMetadata {
	c := md
	c.Chunks = make([]FileChunk, len(md.Chunks))
	for i, ck := range md.Chunks {
		ck.ReplicaNodes = append([]string(nil), ck.ReplicaNodes...)
		c.Chunks[i] = ck
	}
	return c
}

// UnderReplicated counts chunks holding fewer replicas than the file asks for.
func (md FileMetadata) UnderReplicated() int {
	n := 0
	for _, ck := range md.Chunks {
		if len(ck.ReplicaNodes) < md.ReplicationFactor {
			n++
		}
	}
	return n
}

type StorageNodeInfo struct {
	NodeID         string
	Address        string
	Port           int
	Capacity       int64
	UsedSpace      int64
	AvailableSpace int64
	IsAlive        bool
	LastHeartbeat  time.Time
}

func (n StorageNodeInfo) Endpoint() Addr {
	if n.Port == 0 {
		return Addr(n.Address)
	}
	return Addr(n.Address + ":" + strconv.Itoa(n.Port))
}

func (n StorageNodeInfo) UsageRatio() float64 {
	if n.Capacity <= 0 {
		return 0
	}
	return float64(n.UsedSpace) / float64(n.Capacity)
}

// ChunkData is the payload of one chunk as held by a chunk store.
type ChunkData struct {
	ChunkID  string
	Data     []byte
	Checksum string
}

// NodeEvent is emitted by the node registry when a node changes liveness.
type NodeEvent struct {
	NodeID string
	Alive  bool
	At     time.Time
}

type Stats struct {
	TotalFiles  int
	TotalSize   int64
	TotalNodes  int
	ActiveNodes int
}
