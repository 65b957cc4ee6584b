package client

import (
	"context"
	"slices"
	"sync"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Frontend is one generation of a client talking to the backend of a shard.
// It owns the sequencing state of all its histories and transactions.
type Frontend struct {
	shardId   uint64
	client    ids.ClientID
	revisions []abi.Revision
	transport transport.IRPCClientTransport
	seq       *Sequencer
	histories *ids.Generator

	mu         sync.Mutex
	backend    string
	standalone *History
}

// NewFrontend creates a new frontend for a shard
// The function takes a shard ID, a config, a transport and a serializer as
// parameters. The transport is connected, the revision is negotiated by
// Connect.
func NewFrontend(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Frontend, error) {
	revisions := config.Revisions
	if len(revisions) == 0 {
		revisions = abi.Supported()
	}
	revisions = slices.Sorted(slices.Values(revisions))
	for _, r := range revisions {
		if !abi.IsProduction(r) {
			return nil, errors.Wrapf(abi.ErrUnknownRevision, "frontend revisions: %s", r)
		}
	}

	retry := config.Retry
	if retry == (common.RetryConfig{}) {
		retry = common.DefaultRetryConfig()
	}

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	client := ids.ClientID{
		Frontend:   ids.FrontendID{Member: config.Member, Type: config.FrontendType},
		Generation: config.Generation,
	}
	replyTo := common.Address(client.Frontend.String() + "/" + uuid.NewString())

	f := &Frontend{
		shardId:   shardId,
		client:    client,
		revisions: revisions,
		transport: transport,
		seq:       NewSequencer(shardId, replyTo, retry, transport, serializer),
		histories: ids.NewGenerator(client),
	}
	f.standalone = &History{f: f, id: ids.HistoryID{Client: client}, txs: ids.NewTxSequencer(ids.HistoryID{Client: client})}
	return f, nil
}

// Client returns the identity of this frontend generation.
func (f *Frontend) Client() ids.ClientID {
	return f.client
}

// Revision returns the negotiated revision, or abi.Oldest() before Connect.
func (f *Frontend) Revision() abi.Revision {
	return f.seq.Revision()
}

// Backend returns the member name of the backend, empty before Connect.
func (f *Frontend) Backend() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend
}

// Sequencer returns the sequencing layer of the frontend.
func (f *Frontend) Sequencer() *Sequencer {
	return f.seq
}

// Connect registers the client generation with the backend and negotiates the
// revision used for all later requests. The handshake is encoded at the
// oldest production revision so that every backend can read it.
func (f *Frontend) Connect(ctx context.Context) (abi.Revision, error) {
	lo, hi, err := abi.Range(f.revisions)
	if err != nil {
		return abi.RevisionUnknown, err
	}

	f.seq.SetRevision(abi.Oldest())
	resp, err := invoke[common.ConnectClientSuccess](ctx, f.seq, f.client.Key(), func(seq uint64) common.Message {
		return common.ConnectClientRequest{
			Header:      header(f.seq, f.client, seq),
			MinRevision: lo,
			MaxRevision: hi,
			Revisions:   f.revisions,
		}
	})
	if err != nil {
		if common.HasCause(err, common.CauseUnsupportedRevision) {
			err = errors.Mark(err, common.ErrNegotiationFailure)
		}
		return abi.RevisionUnknown, errors.Wrapf(err, "connect %s", f.client)
	}

	if !slices.Contains(f.revisions, resp.Negotiated) {
		common.CountNegotiationFailure()
		return abi.RevisionUnknown, errors.Wrapf(common.ErrNegotiationFailure,
			"backend %s chose %s, supported: %s", resp.Backend, resp.Negotiated, abi.FormatRevisions(f.revisions))
	}

	f.seq.SetRevision(resp.Negotiated)
	f.mu.Lock()
	f.backend = resp.Backend
	f.mu.Unlock()
	access.Infof("Client %s connected to %s at %s", f.client, resp.Backend, resp.Negotiated)
	return resp.Negotiated, nil
}

// Standalone returns the history of transactions that do not belong to an
// explicit history. It always exists and cannot be destroyed.
func (f *Frontend) Standalone() *History {
	return f.standalone
}

// CreateHistory allocates a new local history and creates it on the backend.
func (f *Frontend) CreateHistory(ctx context.Context) (*History, error) {
	id := f.histories.NextHistory()
	_, err := invoke[common.LocalHistorySuccess](ctx, f.seq, id.Key(), func(seq uint64) common.Message {
		return common.CreateLocalHistoryRequest{Header: header(f.seq, id, seq)}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create history %s", id)
	}
	return &History{f: f, id: id, txs: ids.NewTxSequencer(id)}, nil
}

// Close closes the transport.
func (f *Frontend) Close() error {
	return f.transport.Close()
}
