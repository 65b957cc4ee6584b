package serve

import (
	"fmt"

	cmdUtil "github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dTX backend",
		Long:    `Start a dTX backend with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DTX_<flag> (e.g. DTX_RETRY_WINDOW=64)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	defaults := common.DefaultSequencingConfig()

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=lstore", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: dstore, lstore"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied raft log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of log entries to keep after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for the raft log and the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "cluster-file"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) TOML file with a [members] table of name = \"address\" pairs. Takes precedence over --cluster-members"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(dstore) Timeout of raft proposals and reads in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dtx.sock, ...)"))

	key = "transport-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("Read and write buffer size per connection in KB (ignored for http)"))

	key = "transport-workers"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Maximum number of requests handled concurrently per connection (ignored for http)"))

	key = "member"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Backend name reported to connecting frontends. Defaults to the endpoint"))

	key = "revisions"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of protocol revisions this backend accepts (e.g. 1,2 to pin a node during a rolling upgrade). Empty means all supported revisions"))

	key = "retry-window"
	ServeCmd.PersistentFlags().Int(key, defaults.RetryWindow, cmdUtil.WrapString("Number of most recent sequence numbers per target whose responses are remembered for retransmissions"))

	key = "reorder-timeout"
	ServeCmd.PersistentFlags().Duration(key, defaults.ReorderTimeout, cmdUtil.WrapString("How long a request that arrived early waits for its predecessors"))

	key = "max-buffered"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxBufferedPerTarget, cmdUtil.WrapString("Maximum number of early requests buffered per target"))

	key = "max-peer-violations"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxPeerViolations, cmdUtil.WrapString("Sequence violations after which a reply-to address is refused. 0 disables the limit"))

	key = "purged-cache-size"
	ServeCmd.PersistentFlags().Int(key, defaults.PurgedCacheSize, cmdUtil.WrapString("Number of purged histories and transactions remembered so late requests are refused"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address to serve Prometheus metrics on (e.g. localhost:9100). Empty disables the endpoint"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	shards, err := cmdUtil.ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	revisions, err := abi.ParseRevisions(viper.GetString("revisions"))
	if err != nil {
		return fmt.Errorf("invalid --revisions: %w", err)
	}
	serveCmdConfig.Revisions = revisions

	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Member = viper.GetString("member")
	if serveCmdConfig.Member == "" {
		serveCmdConfig.Member = serveCmdConfig.Transport.Endpoint
	}

	serveCmdConfig.Sequencing = common.SequencingConfig{
		RetryWindow:          viper.GetInt("retry-window"),
		ReorderTimeout:       viper.GetDuration("reorder-timeout"),
		MaxBufferedPerTarget: viper.GetInt("max-buffered"),
		MaxPeerViolations:    viper.GetInt("max-peer-violations"),
		PurgedCacheSize:      viper.GetInt("purged-cache-size"),
	}
	if serveCmdConfig.Sequencing.RetryWindow < 1 {
		return fmt.Errorf("--retry-window must be at least 1")
	}

	if !serveCmdConfig.HasRemoteShard() {
		return nil
	}

	// the remaining settings are only needed for raft replicated shards

	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("ReplicaId is required for remote shards")
	}
	serveCmdConfig.ReplicaID = cmdUtil.ReplicaID(id)

	switch {
	case viper.GetString("cluster-file") != "":
		serveCmdConfig.ClusterMembers, err = cmdUtil.LoadClusterFile(viper.GetString("cluster-file"))
	case viper.GetString("cluster-members") != "":
		serveCmdConfig.ClusterMembers, err = cmdUtil.ParseClusterMembers(viper.GetString("cluster-members"))
	default:
		err = fmt.Errorf("ClusterMembers or a cluster file is required for remote shards")
	}
	if err != nil {
		return err
	}

	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica %s in cluster members", id)
	}
	return nil
}

// run starts the dTX backend
func run(_ *cobra.Command, _ []string) error {
	bufferSize := viper.GetInt("transport-buffer") * 1024
	t, err := cmdUtil.GetServerTransport(bufferSize, viper.GetInt("transport-workers"))
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		cmdUtil.GetSerializer(),
	)

	return serv.Serve()
}
