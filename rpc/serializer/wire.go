package serializer

import (
	"encoding/binary"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// writer appends primitives in the encoding of one revision. Revision1 uses
// fixed width big endian counters and uint32 lengths; later revisions use
// uvarints and replace repeated history identifiers by back-references.
type writer struct {
	buf       []byte
	rev       abi.Revision
	varint    bool
	histories []ids.HistoryID
	err       error
}

func newWriter(rev abi.Revision, sizeHint int) *writer {
	return &writer{
		buf:    make([]byte, 0, sizeHint),
		rev:    rev,
		varint: rev >= abi.Revision2,
	}
}

// fail records the first error; later writes are still harmless.
func (w *writer) fail(format string, args ...interface{}) {
	if w.err == nil {
		w.err = errors.Newf(format, args...)
	}
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	if w.varint {
		w.buf = binary.AppendUvarint(w.buf, uint64(v))
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	if w.varint {
		w.buf = binary.AppendUvarint(w.buf, v)
		return
	}
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *writer) length(n int) {
	w.u32(uint32(n))
}

func (w *writer) str(s string) {
	w.length(len(s))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes(b []byte) {
	w.length(len(b))
	w.buf = append(w.buf, b...)
}

func (w *writer) clientID(c ids.ClientID) {
	w.str(c.Frontend.Member)
	w.str(c.Frontend.Type)
	w.u64(c.Generation)
}

const (
	historyInline  = 0
	historyBackRef = 1
)

func (w *writer) historyID(h ids.HistoryID) {
	if w.varint {
		for i, seen := range w.histories {
			if seen == h {
				w.u8(historyBackRef)
				w.u32(uint32(i))
				return
			}
		}
		w.histories = append(w.histories, h)
		w.u8(historyInline)
	}
	w.clientID(h.Client)
	w.u64(h.History)
	w.u32(h.Cookie)
}

func (w *writer) txID(t ids.TransactionID) {
	w.historyID(t.History)
	w.u64(t.Tx)
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// reader is the counterpart of writer. The first error is sticky: every
// later read returns a zero value, so decoders check err once at the end.
type reader struct {
	data      []byte
	rev       abi.Revision
	varint    bool
	histories []ids.HistoryID
	err       error
}

func newReader(data []byte, rev abi.Revision) *reader {
	return &reader{data: data, rev: rev, varint: rev >= abi.Revision2}
}

func (r *reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = errors.Newf(format, args...)
	}
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data) < n {
		r.fail("data too short for %s", what)
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) u8(what string) uint8 {
	b := r.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16(what string) uint16 {
	b := r.take(2, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uvarint(what string) uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		r.fail("invalid varint for %s", what)
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *reader) u32(what string) uint32 {
	if r.varint {
		v := r.uvarint(what)
		if v > 1<<32-1 {
			r.fail("%s out of range", what)
			return 0
		}
		return uint32(v)
	}
	b := r.take(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64(what string) uint64 {
	if r.varint {
		return r.uvarint(what)
	}
	b := r.take(8, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// length reads a length or count and checks it against the remaining input,
// assuming every element takes at least minElem bytes.
func (r *reader) length(what string, minElem int) int {
	n := r.u32(what)
	if r.err != nil {
		return 0
	}
	if uint64(n)*uint64(minElem) > uint64(len(r.data)) {
		r.fail("%s %d exceeds remaining data", what, n)
		return 0
	}
	return int(n)
}

func (r *reader) str(what string) string {
	return string(r.take(r.length(what, 1), what))
}

// bytes always returns a non-nil slice on success.
func (r *reader) bytes(what string) []byte {
	b := r.take(r.length(what, 1), what)
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) clientID() ids.ClientID {
	var c ids.ClientID
	c.Frontend.Member = r.str("frontend member")
	c.Frontend.Type = r.str("frontend type")
	c.Generation = r.u64("generation")
	return c
}

func (r *reader) historyID() ids.HistoryID {
	if r.varint {
		switch tag := r.u8("history tag"); tag {
		case historyInline:
		case historyBackRef:
			i := r.u32("history reference")
			if r.err != nil {
				return ids.HistoryID{}
			}
			if int(i) >= len(r.histories) {
				r.fail("history reference %d out of range", i)
				return ids.HistoryID{}
			}
			return r.histories[i]
		default:
			r.fail("unknown history tag %d", tag)
			return ids.HistoryID{}
		}
	}
	var h ids.HistoryID
	h.Client = r.clientID()
	h.History = r.u64("history")
	h.Cookie = r.u32("cookie")
	if r.varint && r.err == nil {
		r.histories = append(r.histories, h)
	}
	return h
}

func (r *reader) txID() ids.TransactionID {
	var t ids.TransactionID
	t.History = r.historyID()
	t.Tx = r.u64("transaction")
	return t
}
