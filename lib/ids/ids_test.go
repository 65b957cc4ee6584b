package ids

import (
	"errors"
	"sort"
	"sync"
	"testing"
)

var testClient = ClientID{
	Frontend:   FrontendID{Member: "member-1", Type: "datastore"},
	Generation: 0,
}

func TestTransactionOrderingWithinHistory(t *testing.T) {
	h := HistoryID{Client: testClient, History: 1}

	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 1, -1},
		{5, 5, 0},
		{9, 2, 1},
	}
	for _, tt := range tests {
		got := TransactionID{History: h, Tx: tt.a}.Compare(TransactionID{History: h, Tx: tt.b})
		if got != tt.want {
			t.Errorf("Compare(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTransactionsFromDifferentHistoriesNeverEqual(t *testing.T) {
	a := TransactionID{History: HistoryID{Client: testClient, History: 1}, Tx: 3}
	b := TransactionID{History: HistoryID{Client: testClient, History: 2}, Tx: 3}
	c := TransactionID{History: HistoryID{Client: testClient, History: 1, Cookie: 1}, Tx: 3}

	if a == b || a == c || b == c {
		t.Fatalf("identifiers from different histories compare equal")
	}
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 {
		t.Errorf("history order not respected: %d %d", a.Compare(b), b.Compare(a))
	}
	if a.Key() == b.Key() {
		t.Errorf("keys of different histories collide")
	}
}

func TestGenerationOrdersBeforeHistory(t *testing.T) {
	old := HistoryID{Client: testClient, History: 100}
	restarted := testClient
	restarted.Generation = 1
	fresh := HistoryID{Client: restarted, History: 1}

	if old.Compare(fresh) >= 0 {
		t.Errorf("histories of an older generation must sort first")
	}
	if old == fresh {
		t.Errorf("histories of different generations must differ")
	}
}

func TestIdentifiersAreHashable(t *testing.T) {
	h := HistoryID{Client: testClient, History: 1}
	seen := map[TransactionID]bool{}
	seen[TransactionID{History: h, Tx: 1}] = true

	if !seen[TransactionID{History: h, Tx: 1}] {
		t.Errorf("structurally equal identifier not found in map")
	}
	if seen[TransactionID{History: h, Tx: 2}] {
		t.Errorf("different identifier found in map")
	}
}

func TestNegativeCountersRejected(t *testing.T) {
	if _, err := NewHistoryID(testClient, -1, 0); !errors.Is(err, ErrNegativeCounter) {
		t.Errorf("NewHistoryID(-1): expected ErrNegativeCounter, got %v", err)
	}
	h, err := NewHistoryID(testClient, 3, 7)
	if err != nil {
		t.Fatalf("NewHistoryID: %v", err)
	}
	if _, err := NewTransactionID(h, -5); !errors.Is(err, ErrNegativeCounter) {
		t.Errorf("NewTransactionID(-5): expected ErrNegativeCounter, got %v", err)
	}
	tx, err := NewTransactionID(h, 0)
	if err != nil || tx.Tx != 0 || tx.History != h {
		t.Errorf("NewTransactionID(0) = %v, %v", tx, err)
	}
}

func TestTxSequencerClaim(t *testing.T) {
	s := NewTxSequencer(HistoryID{Client: testClient, History: 1})

	if id := s.Next(); id.Tx != 0 {
		t.Fatalf("first transaction = %d, want 0", id.Tx)
	}
	if id, err := s.Claim(5); err != nil || id.Tx != 5 {
		t.Fatalf("Claim(5) = %v, %v", id, err)
	}
	if _, err := s.Claim(3); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("Claim(3) after 5: expected ErrNonMonotonic, got %v", err)
	}
	if _, err := s.Claim(-1); !errors.Is(err, ErrNegativeCounter) {
		t.Errorf("Claim(-1): expected ErrNegativeCounter, got %v", err)
	}
	if id := s.Next(); id.Tx != 6 {
		t.Errorf("Next after Claim(5) = %d, want 6", id.Tx)
	}
}

func TestConcurrentAllocationIsUnique(t *testing.T) {
	g := NewGenerator(testClient)
	s := NewTxSequencer(g.NextHistory())

	const workers, perWorker = 8, 200
	var mu sync.Mutex
	var got []uint64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, s.Next().Tx)
			}
			mu.Lock()
			got = append(got, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, v := range got {
		if v != uint64(i) {
			t.Fatalf("allocation %d = %d: duplicates or gaps", i, v)
		}
	}
}

func TestGeneratorSkipsStandaloneHistory(t *testing.T) {
	g := NewGenerator(testClient)
	first, second := g.NextHistory(), g.NextHistory()
	if first.History != 1 || second.History != 2 {
		t.Errorf("histories = %d, %d, want 1, 2", first.History, second.History)
	}
}

func TestFixedBinaryRoundTrip(t *testing.T) {
	tx := TransactionID{
		History: HistoryID{Client: ClientID{Frontend: FrontendID{Member: "m", Type: "t"}, Generation: 9}, History: 4, Cookie: 2},
		Tx:      77,
	}
	b := AppendTransactionID(nil, tx)
	b = append(b, 0xAA) // trailing data must be returned untouched

	got, rest, err := ReadTransactionID(b)
	if err != nil {
		t.Fatalf("ReadTransactionID: %v", err)
	}
	if got != tx {
		t.Errorf("round trip = %v, want %v", got, tx)
	}
	if len(rest) != 1 || rest[0] != 0xAA {
		t.Errorf("unexpected remainder %v", rest)
	}

	for i := 0; i < len(b)-1; i++ {
		if _, _, err := ReadTransactionID(b[:i]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("truncated at %d: expected ErrTruncated, got %v", i, err)
		}
	}
}
