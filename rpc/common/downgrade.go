package common

import (
	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Field Rules
// --------------------------------------------------------------------------

// fieldRule describes a field that does not exist in every revision.
//
// Advisory fields only tune behaviour and are dropped when the target
// revision predates them. Structural fields change the meaning of a message;
// if one is present the downgrade fails.
type fieldRule struct {
	field      string
	since      abi.Revision
	structural bool
	present    func(Message) bool
	drop       func(Message) Message // nil for structural fields
}

var fieldRules = map[Kind][]fieldRule{
	KindReadTransactionRequest: {{
		field: "Priority",
		since: abi.Revision3,
		present: func(m Message) bool {
			return m.(ReadTransactionRequest).Priority != nil
		},
		drop: func(m Message) Message {
			c := m.(ReadTransactionRequest)
			c.Priority = nil
			return c
		},
	}},
	KindReadTransactionSuccess: {{
		field: "DataVersion",
		since: abi.Revision3,
		present: func(m Message) bool {
			return m.(ReadTransactionSuccess).DataVersion != nil
		},
		drop: func(m Message) Message {
			c := m.(ReadTransactionSuccess)
			c.DataVersion = nil
			return c
		},
	}},
	KindModifyTransactionRequest: {{
		field:      "Modifications.ExpectedVersion",
		since:      abi.Revision3,
		structural: true,
		present: func(m Message) bool {
			for _, mod := range m.(ModifyTransactionRequest).Modifications {
				if mod.ExpectedVersion != nil {
					return true
				}
			}
			return false
		},
	}},
}

func init() {
	for k, rules := range fieldRules {
		for _, r := range rules {
			if r.present == nil || (r.drop == nil) != r.structural {
				panic("common: incomplete field rule " + k.String() + "." + r.field)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Downgrade Engine
// --------------------------------------------------------------------------

// CloneAsVersion returns a copy of m tagged with revision r.
//
// Cloning to a revision at or above the message's own only retags it; the
// test-future sentinel is above every production revision. Cloning below
// drops advisory fields the target does not know and fails with
// ErrUnsupportedDowngrade if the variant or a present structural field does
// not exist at r. The receiver is never modified, and cloning a clone to the
// same revision yields an equal message.
func CloneAsVersion(m Message, r abi.Revision) (Message, error) {
	if m == nil {
		return nil, errors.New("common: clone of nil message")
	}
	if !abi.IsKnown(r) {
		return nil, errors.Wrapf(abi.ErrUnknownRevision, "clone %s as %s", m.Kind(), r)
	}

	kind := m.Kind()
	if !kind.AvailableAt(r) {
		return nil, &DowngradeError{Kind: kind, From: m.Revision(), To: r}
	}
	for _, rule := range fieldRules[kind] {
		if r >= rule.since || !rule.present(m) {
			continue
		}
		if rule.structural {
			return nil, &DowngradeError{Kind: kind, Field: rule.field, From: m.Revision(), To: r}
		}
		m = rule.drop(m)
	}
	return m.withRevision(r), nil
}

// FieldsSince lists the revision dependent fields of kind k, for
// documentation and the revisions command.
func FieldsSince(k Kind) map[string]abi.Revision {
	out := make(map[string]abi.Revision, len(fieldRules[k]))
	for _, r := range fieldRules[k] {
		out[r.field] = r.since
	}
	return out
}

// IsStructural reports whether the named field of kind k blocks downgrades.
func IsStructural(k Kind, field string) bool {
	for _, r := range fieldRules[k] {
		if r.field == field {
			return r.structural
		}
	}
	return false
}
