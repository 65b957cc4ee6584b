package abi

import (
	"errors"
	"reflect"
	"testing"
)

func TestSupportedIsOrdered(t *testing.T) {
	revs := Supported()
	for i := 1; i < len(revs); i++ {
		if revs[i-1] >= revs[i] {
			t.Fatalf("revisions not strictly ascending: %v", revs)
		}
	}
	if Oldest() != revs[0] || Current() != revs[len(revs)-1] {
		t.Errorf("Oldest/Current mismatch: %s %s %v", Oldest(), Current(), revs)
	}

	// modifying the copy must not leak into the registry
	revs[0] = RevisionTestFuture
	if Oldest() != Revision1 {
		t.Errorf("Supported() returned the internal slice")
	}
}

func TestKnownAndProduction(t *testing.T) {
	tests := []struct {
		rev        Revision
		known      bool
		production bool
	}{
		{RevisionUnknown, false, false},
		{Revision1, true, true},
		{Revision3, true, true},
		{Revision(4), false, false},
		{RevisionTestFuture, true, false},
	}
	for _, tt := range tests {
		if got := IsKnown(tt.rev); got != tt.known {
			t.Errorf("IsKnown(%s) = %v, want %v", tt.rev, got, tt.known)
		}
		if got := IsProduction(tt.rev); got != tt.production {
			t.Errorf("IsProduction(%s) = %v, want %v", tt.rev, got, tt.production)
		}
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name    string
		local   []Revision
		remote  []Revision
		want    Revision
		wantErr bool
	}{
		{"identical", []Revision{1, 2, 3}, []Revision{1, 2, 3}, Revision3, false},
		{"older peer", []Revision{1, 2, 3}, []Revision{1, 2}, Revision2, false},
		{"future sentinel ignored", []Revision{1, 2, 3}, []Revision{1, 2, RevisionTestFuture}, Revision2, false},
		{"unknown revision ignored", []Revision{1, 2, 3}, []Revision{1, 7}, Revision1, false},
		{"disjoint", []Revision{3}, []Revision{1, 2}, RevisionUnknown, true},
		{"empty remote", []Revision{1, 2, 3}, nil, RevisionUnknown, true},
		{"only sentinel in common", []Revision{RevisionTestFuture}, []Revision{RevisionTestFuture}, RevisionUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(tt.local, tt.remote)
			if tt.wantErr {
				if !errors.Is(err, ErrNoCommonRevision) {
					t.Fatalf("expected ErrNoCommonRevision, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Negotiate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNegotiateIsCommutative(t *testing.T) {
	universe := []Revision{Revision1, Revision2, Revision3, RevisionTestFuture}

	// enumerate every subset pair of the universe
	subsets := make([][]Revision, 0, 1<<len(universe))
	for mask := 0; mask < 1<<len(universe); mask++ {
		var set []Revision
		for i, r := range universe {
			if mask&(1<<i) != 0 {
				set = append(set, r)
			}
		}
		subsets = append(subsets, set)
	}

	for _, a := range subsets {
		for _, b := range subsets {
			ab, errAB := Negotiate(a, b)
			ba, errBA := Negotiate(b, a)
			if ab != ba || (errAB == nil) != (errBA == nil) {
				t.Fatalf("Negotiate(%v,%v)=%s,%v but Negotiate(%v,%v)=%s,%v", a, b, ab, errAB, b, a, ba, errBA)
			}
		}
	}
}

func TestNegotiateAdvertised(t *testing.T) {
	local := Supported()

	if got, err := NegotiateAdvertised(local, RevisionTestFuture); err != nil || got != Current() {
		t.Errorf("future peer: got %s, %v; want %s", got, err, Current())
	}
	if got, err := NegotiateAdvertised(local, Revision2); err != nil || got != Revision2 {
		t.Errorf("older peer: got %s, %v; want %s", got, err, Revision2)
	}
	if _, err := NegotiateAdvertised([]Revision{Revision3}, Revision1); !errors.Is(err, ErrNoCommonRevision) {
		t.Errorf("expected ErrNoCommonRevision, got %v", err)
	}
}

func TestParseRevisions(t *testing.T) {
	got, err := ParseRevisions("3, r1,2,3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []Revision{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("ParseRevisions() = %v, want %v", got, want)
	}

	if got, _ := ParseRevisions(""); !reflect.DeepEqual(got, Supported()) {
		t.Errorf("empty list should default to Supported(), got %v", got)
	}

	for _, bad := range []string{"9", "x", "1,,2"} {
		if _, err := ParseRevisions(bad); !errors.Is(err, ErrUnknownRevision) {
			t.Errorf("ParseRevisions(%q): expected ErrUnknownRevision, got %v", bad, err)
		}
	}

	if r, err := ParseRevision("test-future"); err != nil || r != RevisionTestFuture {
		t.Errorf("ParseRevision(test-future) = %s, %v", r, err)
	}
}
