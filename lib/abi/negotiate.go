package abi

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// Negotiate returns the highest revision present in both sets.
//
// Revisions this build does not produce (including RevisionTestFuture) are
// ignored on either side, which is what lets a newer peer that advertises
// revisions unknown to us still agree on an older common one. The result does
// not depend on argument order.
func Negotiate(local, remote []Revision) (Revision, error) {
	best := RevisionUnknown
	for _, r := range local {
		if !IsProduction(r) || !slices.Contains(remote, r) {
			continue
		}
		if r > best {
			best = r
		}
	}
	if best == RevisionUnknown {
		return RevisionUnknown, errors.Wrapf(ErrNoCommonRevision,
			"local=[%s] remote=[%s]", FormatRevisions(local), FormatRevisions(remote))
	}
	return best, nil
}

// NegotiateAdvertised handles peers that only advertise their newest revision.
// The result is the highest local revision not newer than remoteMax; a remoteMax
// newer than anything we know degrades to our own newest revision.
func NegotiateAdvertised(local []Revision, remoteMax Revision) (Revision, error) {
	best := RevisionUnknown
	for _, r := range local {
		if IsProduction(r) && r <= remoteMax && r > best {
			best = r
		}
	}
	if best == RevisionUnknown {
		return RevisionUnknown, errors.Wrapf(ErrNoCommonRevision,
			"local=[%s] remote max=%s", FormatRevisions(local), remoteMax)
	}
	return best, nil
}
