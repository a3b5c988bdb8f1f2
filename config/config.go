package config

import (
	"dfs/internal/common"
	"dfs/internal/types"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
)

// CoordinatorConfig is the <coordinator> block. Empty fields fall back to
// the defaults in internal/common.
type CoordinatorConfig struct {
	Address string `xml:"address"`
	Port    string `xml:"port"`
	Log     string `xml:"log"`
	Debug   string `xml:"debug"`

	ChunkSize         string `xml:"chunksize"`
	ReplicationFactor int    `xml:"replication"`
	AliveWindow       string `xml:"alivewindow"`
	SweepInterval     string `xml:"sweepinterval"`
	GCInterval        string `xml:"gcinterval"`
	StageTTL          string `xml:"stagettl"`

	Meta   MetaConfig  `xml:"meta"`
	Chunks ChunkConfig `xml:"chunks"`
}

type MetaConfig struct {
	// memory | redis
	Backend      string `xml:"backend"`
	RedisAddr    string `xml:"redis"`
	RedisPrefix  string `xml:"prefix"`
	Snapshot     string `xml:"snapshot"`
	SnapInterval string `xml:"snapinterval"`
}

type ChunkConfig struct {
	// local | replicated
	Backend    string `xml:"backend"`
	Durability string `xml:"durability"`
	Timeout    string `xml:"timeout"`
	Retry      *int   `xml:"retry"`
	Picker     string `xml:"picker"`
	Checksum   string `xml:"checksum"`
	Strict     bool   `xml:"strict"`
}

type StorageNodeConfig struct {
	Nodes []Node `xml:"node"`
}

type Node struct {
	Uuid      int64  `xml:"uuid"`
	Name      string `xml:"name"`
	Address   string `xml:"address"`
	Port      string `xml:"port"`
	Capacity  string `xml:"capacity"`
	DataDir   string `xml:"datadir"`
	Heartbeat string `xml:"heartbeat"`
	Log       string `xml:"log"`
	Debug     string `xml:"debug"`
}

type ClusterConfig struct {
	Coordinator CoordinatorConfig `xml:"coordinator"`
	Storage     StorageNodeConfig `xml:"storagenode"`
}

type Configuration struct {
	XMLName xml.Name      `xml:"configuration"`
	Version string        `xml:"version"`
	Cluster ClusterConfig `xml:"clusters"`
}

var (
	path = "config.xml"
	conf *Configuration
	once sync.Once
)

// SetPath sets the directory holding config.xml. DFS_CONFIG, when set,
// names the file itself and wins.
func SetPath(dir string) {
	path = filepath.Join(dir, "config.xml")
}

func configPath() string {
	if p, ok := os.LookupEnv("DFS_CONFIG"); ok && p != "" {
		return p
	}
	return path
}

func Load(r io.Reader) (*Configuration, error) {
	cc := Configuration{}
	if err := xml.NewDecoder(r).Decode(&cc); err != nil {
		return nil, fmt.Errorf("decode cluster config: %w", err)
	}
	return &cc, nil
}

func LoadFile(file string) (*Configuration, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// GetClusterConfig loads the cluster file once and panics when it is missing
// or malformed.
func GetClusterConfig() *Configuration {
	once.Do(func() {
		file := configPath()
		common.LInfo("load cluster config file %v", file)
		cc, err := LoadFile(file)
		if err != nil {
			panic(err)
		}
		conf = cc
	})
	return conf
}

// ResolveUUID returns uuid, or DFS_UUID from the environment when uuid is 0.
func ResolveUUID(uuid int64) (int64, error) {
	if uuid != 0 {
		return uuid, nil
	}
	id, ok := os.LookupEnv("DFS_UUID")
	if !ok {
		return 0, fmt.Errorf("%w: no uuid given and DFS_UUID unset", types.ErrInvalidArgument)
	}
	xid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: DFS_UUID %q", types.ErrInvalidArgument, id)
	}
	return xid, nil
}

// StorageNode finds the node entry with uuid.
func (cc *Configuration) StorageNode(uuid int64) (*Node, error) {
	for i, v := range cc.Cluster.Storage.Nodes {
		if v.Uuid == uuid {
			return &cc.Cluster.Storage.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: storage node uuid %v", types.ErrNotFound, uuid)
}

func (c *CoordinatorConfig) Addr() types.Addr {
	return types.Addr(net.JoinHostPort(c.Address, c.Port))
}

func (n *Node) Addr() types.Addr {
	return types.Addr(net.JoinHostPort(n.Address, n.Port))
}

// ID is the node name, or "node<uuid>" when unnamed.
func (n *Node) ID() string {
	if n.Name != "" {
		return n.Name
	}
	return "node" + strconv.FormatInt(n.Uuid, 10)
}

// ParseSize parses a human size such as "4MB" or "100GB". Empty is def.
func ParseSize(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	var c datasize.ByteSize
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: size %q", types.ErrInvalidArgument, s)
	}
	return int64(c.Bytes()), nil
}

// ParseDuration parses a Go duration. Empty is def.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q", types.ErrInvalidArgument, s)
	}
	return d, nil
}

// HumanSize formats n bytes the way sizes are written in the config file.
func HumanSize(n int64) string {
	if n < 0 {
		return "unbounded"
	}
	return datasize.ByteSize(n).HumanReadable()
}
