package util

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/rpc/client"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/ValentinKolb/dTX/rpc/transport/http"
	"github.com/ValentinKolb/dTX/rpc/transport/tcp"
	"github.com/ValentinKolb/dTX/rpc/transport/unix"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and binds DTX_ prefixed environment variables.
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("dtx")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupRPCClientFlags adds the connection, retry and frontend identity flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultRetryConfig()

	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("Overall timeout of one command in seconds"))

	key = "shard"
	cmd.PersistentFlags().Uint64(key, 100, WrapString("ID of the shard to connect to"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Log level of the client (debug, info, warn, error)"))

	// transport
	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the dTX backend. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds, -1 keeps the system default (tcp only)"))

	// retry
	key = "retry-attempt-timeout"
	cmd.PersistentFlags().Duration(key, defaults.AttemptTimeout, WrapString("How long one attempt waits for its response before the request is retransmitted"))

	key = "retry-max-attempts"
	cmd.PersistentFlags().Int(key, defaults.MaxAttempts, WrapString("How many times a request is transmitted, including the first transmission"))

	key = "retry-backoff-initial"
	cmd.PersistentFlags().Duration(key, defaults.Backoff.InitialDelay, WrapString("Delay before the first retransmission"))

	key = "retry-backoff-max"
	cmd.PersistentFlags().Duration(key, defaults.Backoff.MaxDelay, WrapString("Upper bound of the delay between retransmissions"))

	key = "retry-backoff-multiplier"
	cmd.PersistentFlags().Float64(key, defaults.Backoff.Multiplier, WrapString("Factor the delay grows by after every retransmission"))

	key = "retry-backoff-jitter"
	cmd.PersistentFlags().Float64(key, defaults.Backoff.Jitter, WrapString("Random fraction (0-1) added to or removed from every delay"))

	// frontend identity
	key = "member"
	cmd.PersistentFlags().String(key, "cli", WrapString("Member name of this frontend"))

	key = "frontend-type"
	cmd.PersistentFlags().String(key, "cli", WrapString("Frontend type of this frontend"))

	key = "generation"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Client generation. 0 derives one from the current time so that every invocation retires the previous one"))

	key = "revisions"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated list of protocol revisions this frontend speaks (e.g. 1,2). Empty means all supported revisions"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	revisions, err := abi.ParseRevisions(viper.GetString("revisions"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid --revisions")
	}

	generation := viper.GetUint64("generation")
	if generation == 0 {
		generation = uint64(time.Now().UnixMilli())
	}

	conf := &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
		Retry: common.RetryConfig{
			AttemptTimeout: viper.GetDuration("retry-attempt-timeout"),
			MaxAttempts:    viper.GetInt("retry-max-attempts"),
			Backoff: common.BackoffConfig{
				InitialDelay: viper.GetDuration("retry-backoff-initial"),
				Multiplier:   viper.GetFloat64("retry-backoff-multiplier"),
				MaxDelay:     viper.GetDuration("retry-backoff-max"),
				Jitter:       viper.GetFloat64("retry-backoff-jitter"),
			},
		},
		Member:       viper.GetString("member"),
		FrontendType: viper.GetString("frontend-type"),
		Generation:   generation,
		Revisions:    revisions,
	}

	if j := conf.Retry.Backoff.Jitter; j < 0 || j > 1 {
		return nil, errors.Newf("invalid --retry-backoff-jitter %v (expected 0 <= jitter <= 1)", j)
	}
	return conf, nil
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return viper.GetUint64("shard")
}

// GetTimeout returns the overall deadline of one command.
func GetTimeout() time.Duration {
	return time.Duration(viper.GetInt("timeout")) * time.Second
}

// GetSerializer creates the serializer. dTX only speaks the binary format.
func GetSerializer() serializer.IRPCSerializer {
	return serializer.NewBinarySerializer()
}

// GetClientTransport creates the client transport selected with --transport
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport selected with --transport
func GetServerTransport(bufferSize, workersPerConn int) (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(bufferSize, workersPerConn), nil
	case "unix":
		return unix.NewUnixServerTransport(bufferSize, workersPerConn), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// ConnectFrontend creates a frontend from the client flags and negotiates the
// protocol revision with the backend.
func ConnectFrontend(ctx context.Context) (*client.Frontend, error) {
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return nil, err
	}

	config, err := GetClientConfig()
	if err != nil {
		return nil, err
	}
	t, err := GetClientTransport()
	if err != nil {
		return nil, err
	}

	f, err := client.NewFrontend(GetShardID(), *config, t, GetSerializer())
	if err != nil {
		return nil, err
	}
	if _, err := f.Connect(ctx); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// --------------------------------------------------------------------------
// Server flag parsing
// --------------------------------------------------------------------------

// ParseShards parses "100=lstore,200=dstore" into the shard list of a server.
func ParseShards(s string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	seen := make(map[uint64]bool)
	for _, shardConfig := range strings.Split(s, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}
		if seen[shardID] {
			return nil, fmt.Errorf("shard %d configured twice", shardID)
		}
		seen[shardID] = true

		var shardType common.ServerShardType
		switch strings.TrimSpace(parts[1]) {
		case "lstore":
			shardType = common.ShardTypeLocal
		case "dstore":
			shardType = common.ShardTypeRemote
		default:
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: dstore, lstore)", parts[1])
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType})
	}
	return shards, nil
}

// ParseClusterMembers parses "node-1=host:port,node-2=host:port". Member names
// are hashed into replica IDs with HashString.
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[ReplicaID(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

// clusterFile is the TOML layout read by LoadClusterFile:
//
//	[members]
//	node-1 = "10.0.0.1:63001"
//	node-2 = "10.0.0.2:63001"
type clusterFile struct {
	Members map[string]string `toml:"members"`
}

// LoadClusterFile reads the initial cluster members from a TOML file.
func LoadClusterFile(path string) (map[uint64]string, error) {
	var file clusterFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, errors.Wrapf(err, "read cluster file %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("cluster file %s: unknown key %s", path, undecoded[0])
	}
	if len(file.Members) == 0 {
		return nil, errors.Newf("cluster file %s: no members", path)
	}

	members := make(map[uint64]string, len(file.Members))
	for name, address := range file.Members {
		members[ReplicaID(name)] = address
	}
	return members, nil
}

// ReplicaID maps a member name to its raft replica ID.
func ReplicaID(name string) uint64 {
	return HashString(name, 0)
}

// HashString hashes s with FNV-1a, seed is mixed into the offset basis.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}
