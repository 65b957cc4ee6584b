package serializer

import (
	"testing"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/common/fixtures"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	tx := common.NewHeader(fixtures.Tx(1, 12), 40, fixtures.ReplyTo)
	return map[string]common.Message{
		"Abort": common.TransactionAbortRequest{Header: tx},
		"SmallRead": common.ReadTransactionRequest{
			Header: tx,
			Path:   "/k",
		},
		"LargeReadResult": common.ReadTransactionSuccess{
			Header: tx,
			Data:   make([]byte, 1024*16),
		},
		"Modify": common.ModifyTransactionRequest{
			Header:   tx,
			Protocol: common.ProtocolSimple,
			Modifications: []datatree.Modification{
				datatree.Write("/inventory/items/1", make([]byte, 256)),
				datatree.Merge("/inventory", []byte(`{"updated":true}`)),
				datatree.Delete("/inventory/items/0"),
			},
		},
		"Failure": common.TransactionFailure{
			Header: tx,
			Cause:  common.Cause{Code: common.CauseConflict, Message: "precondition failed on /inventory/items/1"},
		},
	}
}

func forEachRevision(b *testing.B, fn func(b *testing.B, name string, msg common.Message)) {
	for msgName, msg := range benchmarkMessages() {
		for _, rev := range abi.Supported() {
			clone, err := msg.CloneAsVersion(rev)
			if err != nil {
				continue
			}
			fn(b, msgName+"_"+rev.String(), clone)
		}
	}
}

// BenchmarkSerialize benchmarks serialization of various message types at every revision
func BenchmarkSerialize(b *testing.B) {
	s := NewBinarySerializer()
	forEachRevision(b, func(b *testing.B, name string, msg common.Message) {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.Serialize(msg); err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
			}
		})
	})
}

// BenchmarkDeserialize benchmarks deserialization of various message types at every revision
func BenchmarkDeserialize(b *testing.B) {
	s := NewBinarySerializer()
	forEachRevision(b, func(b *testing.B, name string, msg common.Message) {
		data, err := s.Serialize(msg)
		if err != nil {
			b.Fatalf("Failed to serialize %s: %v", name, err)
		}
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.Deserialize(data); err != nil {
					b.Fatalf("Failed to deserialize: %v", err)
				}
			}
		})
	})
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	s := NewBinarySerializer()
	forEachRevision(b, func(b *testing.B, name string, msg common.Message) {
		b.Run(name, func(b *testing.B) {
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize: %v", err)
			}
			b.ReportMetric(float64(len(data)), "bytes")
			for i := 0; i < b.N; i++ {
				_ = data
			}
		})
	})
}
