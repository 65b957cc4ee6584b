package serializer

import (
	"encoding/binary"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnsupportedRevision is returned for messages tagged with a revision
	// that has no encoding table (unknown or test-only revisions).
	ErrUnsupportedRevision = errors.New("serializer: unsupported revision")
	// ErrMalformed is returned for input that does not follow the layout of
	// its revision.
	ErrMalformed = errors.New("serializer: malformed message")
)

// headerSize is revision u16 | kind u8 | flags u8.
const headerSize = 4

// NewBinarySerializer creates a new serializer using the per-revision binary
// layout.
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer. It is stateless.
type binarySerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("serializer: nil message")
	}
	rev, kind := msg.Revision(), msg.Kind()
	if !abi.IsProduction(rev) {
		return nil, errors.Wrapf(ErrUnsupportedRevision, "serialize %s at %s", kind, rev)
	}
	c, ok := codecs[codecKey{kind, rev}]
	if !ok {
		return nil, errors.Newf("serializer: %s does not exist at %s", kind, rev)
	}

	w := newWriter(rev, 64)
	w.u16(uint16(rev))
	w.u8(uint8(kind))
	w.u8(0) // flags, patched below

	key := msg.Key()
	switch kind.Scope() {
	case ids.ScopeClient:
		w.clientID(key.History.Client)
	case ids.ScopeHistory:
		w.historyID(key.History)
	case ids.ScopeTransaction:
		w.txID(ids.TransactionID{History: key.History, Tx: key.Tx})
	}
	w.u64(msg.Seq())
	w.str(string(msg.Reply()))

	flags := c.encode(w, msg)
	if w.err != nil {
		return nil, errors.Wrapf(w.err, "serialize %s", kind)
	}
	if flags&^c.flags != 0 {
		return nil, errors.AssertionFailedf("serializer: %s produced flags %#x outside %#x", kind, flags, c.flags)
	}
	w.buf[3] = flags
	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte) (common.Message, error) {
	if len(data) < headerSize {
		return nil, errors.Wrap(ErrMalformed, "data too short for message header")
	}
	rev := abi.Revision(binary.BigEndian.Uint16(data[:2]))
	kind := common.Kind(data[2])
	flags := data[3]

	if !abi.IsProduction(rev) {
		return nil, errors.Wrapf(ErrUnsupportedRevision, "deserialize at %s", rev)
	}
	c, ok := codecs[codecKey{kind, rev}]
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "%s does not exist at %s", kind, rev)
	}
	if flags&^c.flags != 0 {
		return nil, errors.Wrapf(ErrMalformed, "unknown flags %#x for %s at %s", flags&^c.flags, kind, rev)
	}

	r := newReader(data[headerSize:], rev)
	e := envelope{kind: kind, rev: rev}
	switch kind.Scope() {
	case ids.ScopeClient:
		e.client = r.clientID()
	case ids.ScopeHistory:
		e.history = r.historyID()
	case ids.ScopeTransaction:
		e.tx = r.txID()
		e.history = e.tx.History
	}
	e.seq = r.u64("sequence")
	e.replyTo = common.Address(r.str("reply-to"))

	msg := c.decode(r, e, flags)
	if r.err != nil {
		return nil, errors.Mark(errors.Wrapf(r.err, "deserialize %s at %s", kind, rev), ErrMalformed)
	}
	if len(r.data) != 0 {
		return nil, errors.Wrapf(ErrMalformed, "%d trailing bytes after %s", len(r.data), kind)
	}
	return msg, nil
}

// Revision returns the revision tag of an encoded message without decoding it.
func Revision(data []byte) (abi.Revision, error) {
	if len(data) < headerSize {
		return abi.RevisionUnknown, errors.Wrap(ErrMalformed, "data too short for message header")
	}
	return abi.Revision(binary.BigEndian.Uint16(data[:2])), nil
}
