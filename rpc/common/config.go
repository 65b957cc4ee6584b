package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds socket level settings shared by all stream transports.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific settings.
type TCPConf struct {
	TCPNoDelay       bool
	TCPKeepAliveSec  int
	TCPLingerSec     int
	TCPMaxFrameBytes int
}

// ServerTransportConfig configures the listening side.
type ServerTransportConfig struct {
	Endpoint string
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the dialing side.
type ClientTransportConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocal  ServerShardType = "lstore"
	ShardTypeRemote ServerShardType = "dstore"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type selects the store backing the shard
	Type ServerShardType
}

// SequencingConfig holds the backend side sequencing parameters.
type SequencingConfig struct {
	// RetryWindow is the number of most recent sequence numbers per target
	// whose responses are remembered for replay.
	RetryWindow int
	// ReorderTimeout bounds how long an early request waits for its predecessors.
	ReorderTimeout time.Duration
	// MaxBufferedPerTarget bounds the number of early requests per target.
	MaxBufferedPerTarget int
	// MaxPeerViolations is the number of sequence violations after which a
	// reply-to address is no longer trusted. 0 disables the limit.
	MaxPeerViolations int
	// PurgedCacheSize bounds the memory of purged histories and transactions.
	PurgedCacheSize int
}

// DefaultSequencingConfig returns the defaults used by the serve command.
func DefaultSequencingConfig() SequencingConfig {
	return SequencingConfig{
		RetryWindow:          32,
		ReorderTimeout:       2 * time.Second,
		MaxBufferedPerTarget: 64,
		MaxPeerViolations:    16,
		PurgedCacheSize:      4096,
	}
}

// ServerConfig holds all configuration parameters of a backend node.
type ServerConfig struct {
	Shards []ServerShard

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// remote store parameters
	TimeoutSecond int64

	// Protocol
	Member     string         // name reported in ConnectClientSuccess
	Revisions  []abi.Revision // revisions accepted by this node
	Sequencing SequencingConfig

	Transport ServerTransportConfig

	// Metrics endpoint, empty to disable
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// HasRemoteShard checks if the configuration contains any remote shards
func (c *ServerConfig) HasRemoteShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRemote {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Member", c.Member)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	addSection("Protocol")
	addField("Revisions", abi.FormatRevisions(c.Revisions))
	addField("Retry Window", strconv.Itoa(c.Sequencing.RetryWindow))
	addField("Reorder Timeout", c.Sequencing.ReorderTimeout.String())
	addField("Max Buffered", strconv.Itoa(c.Sequencing.MaxBufferedPerTarget))
	addField("Max Peer Violations", strconv.Itoa(c.Sequencing.MaxPeerViolations))
	addField("Purged Cache Size", strconv.Itoa(c.Sequencing.PurgedCacheSize))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasRemoteShard() {
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// BackoffConfig shapes the delay between retransmissions.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       float64 // fraction of the delay, 0 <= Jitter <= 1
}

// RetryConfig is the retry budget of the sequencing layer.
type RetryConfig struct {
	// AttemptTimeout is how long one attempt waits for its response.
	AttemptTimeout time.Duration
	// MaxAttempts includes the first transmission.
	MaxAttempts int
	Backoff     BackoffConfig
}

// DefaultRetryConfig returns the defaults used by the CLI.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		AttemptTimeout: 2 * time.Second,
		MaxAttempts:    5,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     time.Second,
			Jitter:       0.2,
		},
	}
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
	Retry         RetryConfig

	// Identity of the frontend
	Member       string
	FrontendType string
	Generation   uint64
	Revisions    []abi.Revision
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))
	addField("Frontend", fmt.Sprintf("%s/%s gen %d", c.Member, c.FrontendType, c.Generation))
	addField("Revisions", abi.FormatRevisions(c.Revisions))

	addSection("Retry")
	addField("Attempt Timeout", c.Retry.AttemptTimeout.String())
	addField("Max Attempts", strconv.Itoa(c.Retry.MaxAttempts))
	addField("Backoff", fmt.Sprintf("%s x%.1f max %s jitter %.2f",
		c.Retry.Backoff.InitialDelay, c.Retry.Backoff.Multiplier, c.Retry.Backoff.MaxDelay, c.Retry.Backoff.Jitter))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
