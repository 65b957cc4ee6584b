package common_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/common/fixtures"
)

var allRevisions = []abi.Revision{abi.Revision1, abi.Revision2, abi.Revision3, abi.RevisionTestFuture}

func TestFixturesCoverAllKinds(t *testing.T) {
	for _, set := range [][]common.Message{fixtures.Messages(), fixtures.Minimal()} {
		seen := make(map[common.Kind]bool)
		for _, m := range set {
			seen[m.Kind()] = true
		}
		for _, k := range common.Kinds() {
			if !seen[k] {
				t.Errorf("no fixture for %s", k)
			}
		}
	}
}

func TestZeroMatchesKind(t *testing.T) {
	for _, k := range common.Kinds() {
		m, ok := common.Zero(k)
		if !ok || m.Kind() != k {
			t.Errorf("Zero(%s) = %v, %v", k, m, ok)
		}
	}
	if _, ok := common.Zero(0); ok {
		t.Error("Zero(0) should not exist")
	}
}

func TestCloneAsVersionIdempotent(t *testing.T) {
	for _, m := range append(fixtures.Messages(), fixtures.Minimal()...) {
		for _, r := range allRevisions {
			once, err := m.CloneAsVersion(r)
			if err != nil {
				if !errors.Is(err, common.ErrUnsupportedDowngrade) {
					t.Errorf("%s -> %s: unexpected error %v", m.Kind(), r, err)
				}
				continue
			}
			twice, err := once.CloneAsVersion(r)
			if err != nil {
				t.Fatalf("%s -> %s: second clone failed: %v", m.Kind(), r, err)
			}
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("%s -> %s: clone not idempotent:\n%+v\n%+v", m.Kind(), r, once, twice)
			}
			if once.Revision() != r {
				t.Errorf("%s -> %s: revision tag %s", m.Kind(), r, once.Revision())
			}
			if once.Key() != m.Key() || once.Seq() != m.Seq() || once.Reply() != m.Reply() || once.Kind() != m.Kind() {
				t.Errorf("%s -> %s: envelope changed", m.Kind(), r)
			}
		}
	}
}

func TestCloneAsVersionDoesNotMutateReceiver(t *testing.T) {
	for _, m := range fixtures.Messages() {
		before := fixtures.Messages()
		for _, r := range allRevisions {
			_, _ = m.CloneAsVersion(r)
		}
		for _, b := range before {
			if b.Kind() == m.Kind() && !reflect.DeepEqual(b, m) {
				t.Errorf("%s was modified by CloneAsVersion", m.Kind())
			}
		}
	}
}

func TestSnapshotReadSurvivesOldestRevision(t *testing.T) {
	req := common.ReadTransactionRequest{
		Header:       common.NewHeader(fixtures.Tx(1, 0), 0, fixtures.ReplyTo),
		Path:         "/a/b",
		SnapshotOnly: true,
	}
	clone, err := req.CloneAsVersion(abi.Oldest())
	if err != nil {
		t.Fatalf("CloneAsVersion failed: %v", err)
	}
	got := clone.(common.ReadTransactionRequest)
	if !got.SnapshotOnly || got.Path != req.Path || got.Target != req.Target || got.Sequence != 0 {
		t.Errorf("clone = %+v", got)
	}

	future, err := req.CloneAsVersion(abi.RevisionTestFuture)
	if err != nil {
		t.Fatalf("CloneAsVersion(test-future) failed: %v", err)
	}
	if f := future.(common.ReadTransactionRequest); !f.SnapshotOnly || f.Path != req.Path {
		t.Errorf("future clone = %+v", f)
	}
}

func TestAdvisoryFieldsAreDropped(t *testing.T) {
	prio := uint8(1)
	req := common.ReadTransactionRequest{Header: common.NewHeader(fixtures.Tx(1, 0), 1, ""), Path: "/", Priority: &prio}

	clone, err := req.CloneAsVersion(abi.Revision2)
	if err != nil {
		t.Fatalf("CloneAsVersion failed: %v", err)
	}
	if clone.(common.ReadTransactionRequest).Priority != nil {
		t.Error("priority should be dropped below revision 3")
	}
	if req.Priority == nil {
		t.Error("receiver lost its priority")
	}

	up, _ := clone.CloneAsVersion(abi.Revision3)
	if up.(common.ReadTransactionRequest).Priority != nil {
		t.Error("upgrade must not resurrect dropped fields")
	}

	read := common.ReadTransactionSuccess{Header: common.NewHeader(fixtures.Tx(1, 0), 1, ""), Data: []byte("x"), DataVersion: &[]uint64{7}[0]}
	r2, err := read.CloneAsVersion(abi.Revision2)
	if err != nil {
		t.Fatalf("CloneAsVersion failed: %v", err)
	}
	if got := r2.(common.ReadTransactionSuccess); got.DataVersion != nil || got.Revision() != abi.Revision2 || string(got.Data) != "x" {
		t.Errorf("read result at revision 2 = %+v", got)
	}
	if read.Revision() != abi.Current() || read.DataVersion == nil {
		t.Errorf("receiver changed: %+v", read)
	}
}

func TestConnectKeepsRevisionListAtOldest(t *testing.T) {
	revisions := []abi.Revision{abi.Revision1, abi.Revision3}
	connect := common.ConnectClientRequest{Header: common.NewHeader(fixtures.Client(), 0, ""), Revisions: revisions}
	c1, err := connect.CloneAsVersion(abi.Oldest())
	if err != nil {
		t.Fatalf("CloneAsVersion failed: %v", err)
	}
	if got := c1.(common.ConnectClientRequest).Revisions; !reflect.DeepEqual(got, revisions) {
		t.Errorf("revisions at %s = %v, want %v", abi.Oldest(), got, revisions)
	}
}

func TestStructuralFieldBlocksDowngrade(t *testing.T) {
	req := common.ModifyTransactionRequest{
		Header:        common.NewHeader(fixtures.Tx(1, 0), 2, ""),
		Modifications: []datatree.Modification{datatree.Write("/a", nil).WithExpectedVersion(3)},
	}
	_, err := req.CloneAsVersion(abi.Revision1)
	if !errors.Is(err, common.ErrUnsupportedDowngrade) {
		t.Fatalf("expected ErrUnsupportedDowngrade, got %v", err)
	}
	var derr *common.DowngradeError
	if !errors.As(err, &derr) || derr.Field != "Modifications.ExpectedVersion" || derr.To != abi.Revision1 {
		t.Errorf("DowngradeError = %+v", derr)
	}
	if !common.IsStructural(common.KindModifyTransactionRequest, derr.Field) {
		t.Error("field should be reported as structural")
	}

	// without the precondition the same request downgrades fine
	req.Modifications = []datatree.Modification{datatree.Write("/a", nil)}
	if _, err := req.CloneAsVersion(abi.Revision1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewerVariantBlocksDowngrade(t *testing.T) {
	req := common.SkipTransactionsRequest{Header: common.NewHeader(fixtures.History(1), 0, "")}
	_, err := req.CloneAsVersion(abi.Revision1)
	var derr *common.DowngradeError
	if !errors.As(err, &derr) || derr.Field != "" || derr.Kind != common.KindSkipTransactionsRequest {
		t.Errorf("expected variant level DowngradeError, got %v", err)
	}
}

func TestCloneAsVersionRejectsUnknownRevision(t *testing.T) {
	req := common.TransactionAbortRequest{Header: common.NewHeader(fixtures.Tx(1, 0), 0, "")}
	for _, r := range []abi.Revision{abi.RevisionUnknown, 42} {
		if _, err := req.CloneAsVersion(r); !errors.Is(err, abi.ErrUnknownRevision) {
			t.Errorf("CloneAsVersion(%d) = %v", r, err)
		}
	}
}
