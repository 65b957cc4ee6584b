package lstore

import (
	"sync"
	"testing"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
)

func TestLocalStoreConcurrentCommits(t *testing.T) {
	s := NewLocalStore()
	client := ids.ClientID{Frontend: ids.FrontendID{Member: "m", Type: "t"}, Generation: 1}
	history, _ := ids.NewHistoryID(client, 1, 0)
	seq := ids.NewTxSequencer(history)

	const n = 50
	var wg sync.WaitGroup
	indexes := make([]uint64, n)
	for i := 0; i < n; i++ {
		tx := seq.Next()
		wg.Add(1)
		go func(i int, tx ids.TransactionID) {
			defer wg.Done()
			index, err := s.Commit(tx, []datatree.Modification{datatree.Merge("/counter", []byte(`{}`))})
			if err != nil {
				t.Errorf("Commit failed: %v", err)
			}
			indexes[i] = index
		}(i, tx)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, index := range indexes {
		if seen[index] {
			t.Fatalf("index %d returned twice", index)
		}
		seen[index] = true
	}
	info, _ := s.GetInfo()
	if info.Committed != n || info.Nodes != 1 {
		t.Errorf("GetInfo() = %+v", info)
	}
}

func TestLocalStoreReadMissing(t *testing.T) {
	s := NewLocalStore()
	if _, found, err := s.Read("/missing"); found || err != nil {
		t.Errorf("Read(/missing) = %v, %v", found, err)
	}
	if _, _, err := s.Read("missing"); err == nil {
		t.Error("expected error for invalid path")
	}
}
