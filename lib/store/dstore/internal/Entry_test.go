package internal

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
)

func testTx() ids.TransactionID {
	client := ids.ClientID{Frontend: ids.FrontendID{Member: "member-1", Type: "datastore"}, Generation: 2}
	return ids.TransactionID{History: ids.HistoryID{Client: client, History: 3, Cookie: 1}, Tx: 9}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{
			name: "Commit with modifications",
			entry: Entry{
				Type: EntryTCommit,
				Tx:   testTx(),
				Mods: []datatree.Modification{
					datatree.Write("/a", []byte("1")),
					datatree.Merge("/a/b", []byte(`{"x":1}`)).WithExpectedVersion(4),
					datatree.Delete("/c"),
				},
			},
		},
		{
			name:  "Commit without modifications",
			entry: Entry{Type: EntryTCommit, Tx: testTx()},
		},
		{
			name: "Empty but present data",
			entry: Entry{
				Type: EntryTCommit,
				Tx:   testTx(),
				Mods: []datatree.Modification{datatree.Write("/e", []byte{})},
			},
		},
		{
			name: "Binary data and unicode path",
			entry: Entry{
				Type: EntryTCommit,
				Tx:   testTx(),
				Mods: []datatree.Modification{datatree.Write("/你好", []byte{0, 1, 254, 255})},
			},
		},
		{
			name:  "Purge",
			entry: Entry{Type: EntryTPurge, Tx: testTx()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.entry.Serialize()

			var got Entry
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.entry) {
				t.Errorf("round trip mismatch:\ngot:  %+v\nwant: %+v", got, tt.entry)
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	valid := (&Entry{
		Type: EntryTCommit,
		Tx:   testTx(),
		Mods: []datatree.Modification{datatree.Write("/a", []byte("value"))},
	}).Serialize()

	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{"Empty data", []byte{}, "data too short for entry"},
		{"Unknown type", []byte{42}, "unknown entry type 42"},
		{"Truncated id", []byte{byte(EntryTCommit), 0}, "invalid transaction id"},
		{"Truncated data", valid[:len(valid)-1], "data too short for data of length 5"},
		{"Trailing bytes", append(append([]byte{}, valid...), 0), "1 trailing bytes after entry"},
		{
			name: "Unknown flags",
			data: func() []byte {
				b := append([]byte{byte(EntryTPurge)}, ids.AppendTransactionID(nil, testTx())...)
				b = binary.BigEndian.AppendUint32(b, 1)
				return append(b, byte(datatree.OpDelete), 0x80, 0, 0, 0, 0)
			}(),
			expectedErr: "unknown flags 0x80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Entry
			err := e.Deserialize(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if !strings.Contains(err.Error(), tt.expectedErr) {
				t.Errorf("Expected error containing %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of a serialized entry
func TestBinaryFormat(t *testing.T) {
	entry := Entry{
		Type: EntryTCommit,
		Tx:   testTx(),
		Mods: []datatree.Modification{datatree.Write("/k", []byte("v")).WithExpectedVersion(7)},
	}

	expected := []byte{byte(EntryTCommit)}
	expected = ids.AppendTransactionID(expected, testTx())
	expected = binary.BigEndian.AppendUint32(expected, 1)
	expected = append(expected, byte(datatree.OpWrite), modHasData|modHasExpected)
	expected = binary.BigEndian.AppendUint32(expected, 2)
	expected = append(expected, "/k"...)
	expected = binary.BigEndian.AppendUint64(expected, 7)
	expected = binary.BigEndian.AppendUint32(expected, 1)
	expected = append(expected, 'v')

	if got := entry.Serialize(); !bytes.Equal(got, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", got, expected)
	}
}
