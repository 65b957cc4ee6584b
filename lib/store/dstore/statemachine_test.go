package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/lib/store"
	"github.com/ValentinKolb/dTX/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestMachine() *TxStateMachine {
	return CreateStateMachineFactory()(1, 1).(*TxStateMachine)
}

func testTx(tx uint64) ids.TransactionID {
	client := ids.ClientID{Frontend: ids.FrontendID{Member: "member-1", Type: "test"}, Generation: 1}
	return ids.TransactionID{History: ids.HistoryID{Client: client, History: 1}, Tx: tx}
}

func commitEntry(index uint64, tx ids.TransactionID, mods ...datatree.Modification) sm.Entry {
	e := internal.Entry{Type: internal.EntryTCommit, Tx: tx, Mods: mods}
	return sm.Entry{Index: index, Cmd: e.Serialize()}
}

func TestUpdateAndLookup(t *testing.T) {
	fsm := newTestMachine()
	purge := internal.Entry{Type: internal.EntryTPurge, Tx: testTx(1)}

	entries, err := fsm.Update([]sm.Entry{
		commitEntry(10, testTx(1), datatree.Write("/a", []byte("1"))),
		commitEntry(11, testTx(1), datatree.Write("/a", []byte("2"))),
		commitEntry(12, testTx(2), datatree.Write("/a", nil).WithExpectedVersion(0)),
		{Index: 13, Cmd: purge.Serialize()},
		{Index: 14},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	tests := []struct {
		name      string
		result    sm.Result
		wantValue uint64
		wantFail  bool
	}{
		{"first commit", entries[0].Result, 10, false},
		{"duplicate commit keeps index", entries[1].Result, 10, false},
		{"conflicting commit", entries[2].Result, uint64(store.RetCConflict), true},
		{"purge", entries[3].Result, 13, false},
		{"empty command", entries[4].Result, uint64(store.RetCInvalidOperation), true},
	}
	for _, tt := range tests {
		if tt.result.Value != tt.wantValue || (len(tt.result.Data) > 0) != tt.wantFail {
			t.Errorf("%s: result = %+v", tt.name, tt.result)
		}
	}

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTRead, Path: "/a"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	read := res.(internal.ReadResult)
	if !read.Found || string(read.Node.Data) != "1" || read.Node.Version != 10 {
		t.Errorf("Lookup(/a) = %+v", read)
	}

	if _, err := fsm.Lookup(internal.Query{Type: internal.QueryTCheck, Mods: []datatree.Modification{
		datatree.Write("/a", nil).WithExpectedVersion(9),
	}}); err == nil {
		t.Error("expected check to fail")
	}
	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Error("expected error for invalid query type")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	fsm := newTestMachine()
	_, _ = fsm.Update([]sm.Entry{
		commitEntry(1, testTx(1), datatree.Write("/x", []byte("x")), datatree.Write("/x/y", []byte("y"))),
	})

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	restored := newTestMachine()
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	want, _ := fsm.Lookup(internal.Query{Type: internal.QueryTGetInfo})
	got, _ := restored.Lookup(internal.Query{Type: internal.QueryTGetInfo})
	if got != want {
		t.Errorf("restored info = %v, want %v", got, want)
	}
}
