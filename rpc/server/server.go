package server

import (
	"net/http"
	"os/signal"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/store"
	"github.com/ValentinKolb/dTX/lib/store/dstore"
	"github.com/ValentinKolb/dTX/lib/store/lstore"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc/server")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates, the gate that orders the requests
// of every target and the adapter that handles them
type serverShard struct {
	Store   store.IStore
	Gate    *sequenceGate
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if len(config.Revisions) == 0 {
		config.Revisions = abi.Supported()
	}
	if config.Sequencing == (common.SequencingConfig{}) {
		config.Sequencing = common.DefaultSequencingConfig()
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer is a backend node serving one or more shards.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost
	metrics    *http.Server
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It blocks until the transport stops.
func (s *RPCServer) Serve() error {
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config.LogLevel); err != nil {
			return err
		}
	}
	if err := s.Init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Init creates the shards and registers the request handler without
// starting the transport.
func (s *RPCServer) Init() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Create the Dragonboat NodeHost
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return errors.Wrap(err, "failed to create node host")
		}
		s.nodeHost = nodeHost
	}

	// Configure the timeout for the distributed store
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	/*
		Note: A single RPC Server can have any number of remote and or local shards.
		Every shard gets its own store, sequence gate and transaction adapter.
	*/

	for _, shardConfig := range s.config.Shards {
		gate, err := newSequenceGate(s.config.Sequencing)
		if err != nil {
			return errors.Wrapf(err, "failed to create sequence gate for shard %d", shardConfig.ShardID)
		}

		var st store.IStore
		switch shardConfig.Type {
		case common.ShardTypeLocal:
			st = lstore.NewLocalStore()
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemote:
			if s.nodeHost == nil {
				return errors.New("node host is nil, cannot create remote store")
			}
			// Start Raft for the shard
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return errors.Wrapf(err, "failed to start shard %d", shardConfig.ShardID)
			}
			st = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout)
			Logger.Infof("created distributed store for shard %d", shardConfig.ShardID)

		default:
			return errors.Newf("invalid shard type: %s", shardConfig.Type)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Store:   st,
			Gate:    gate,
			Adapter: NewTxServerAdapter(s.config.Member, s.config.Revisions, gate),
		})
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetrics()
	}

	Logger.Infof("dTX setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.Handle)
	return nil
}

// Close stops the transport, the metrics endpoint and the node host.
func (s *RPCServer) Close() error {
	err := s.transport.Close()
	if s.metrics != nil {
		err = errors.CombineErrors(err, s.metrics.Close())
	}
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
	return err
}

// Handle decodes a request, passes it through the sequence gate of its shard
// and returns the encoded response in the revision of the request.
// An empty response means the request could not be decoded.
func (s *RPCServer) Handle(shardId uint64, req []byte) []byte {
	msg, err := s.serializer.Deserialize(req)
	if err != nil {
		Logger.Warningf("Failed to deserialize request for shard %d: %v", shardId, err)
		return nil
	}
	if !msg.Kind().IsRequest() {
		Logger.Warningf("Ignoring %s sent to shard %d", common.Describe(msg), shardId)
		return nil
	}
	common.CountRequest("server", msg.Kind())

	resp := s.dispatch(shardId, msg)
	return s.encode(msg, resp)
}

// dispatch returns the response for a decoded request.
// Connects are understood at every production revision, that is where
// negotiation happens.
func (s *RPCServer) dispatch(shardId uint64, msg common.Message) common.Message {
	_, connect := msg.(common.ConnectClientRequest)
	if !connect && !slices.Contains(s.config.Revisions, msg.Revision()) {
		return fail(msg, common.CauseUnsupportedRevision,
			"revision "+msg.Revision().String()+" is not accepted, accepted: "+abi.FormatRevisions(s.config.Revisions))
	}

	shard, ok := s.shards.Load(shardId)
	if !ok {
		return fail(msg, common.CauseNotFound, "shard not found")
	}

	return shard.Gate.Process(msg, func() common.Message {
		return shard.Adapter.Handle(msg, shard.Store)
	})
}

// encode serializes resp in the revision of req. A response that cannot be
// expressed at that revision is replaced by an internal failure.
func (s *RPCServer) encode(req, resp common.Message) []byte {
	clone, err := resp.CloneAsVersion(s.replyRevision(req.Revision()))
	if err != nil {
		Logger.Errorf("Failed to downgrade response %s: %v", common.Describe(resp), err)
		clone, _ = fail(req, common.CauseInternal, err.Error()).CloneAsVersion(s.replyRevision(req.Revision()))
	}

	data, err := s.serializer.Serialize(clone)
	if err != nil {
		Logger.Errorf("Failed to serialize response %s: %v", common.Describe(clone), err)
		return nil
	}
	return data
}

// replyRevision is the revision to answer a request of revision r in:
// r itself, or for unaccepted revisions the newest accepted one below it.
func (s *RPCServer) replyRevision(r abi.Revision) abi.Revision {
	if slices.Contains(s.config.Revisions, r) {
		return r
	}
	reply := abi.Oldest()
	for _, accepted := range s.config.Revisions {
		if accepted <= r && accepted > reply {
			reply = accepted
		}
	}
	return reply
}

// startMetrics serves the protocol metrics in Prometheus text format.
func (s *RPCServer) startMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteMetrics(w)
	})
	s.metrics = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}
