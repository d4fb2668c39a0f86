package syncengine

import (
	"time"

	"wardroster/pkg/domain"
)

// Classification is the relationship between the local copy and the remote.
type Classification string

const (
	// InSync means the remote has not changed since the last reconciliation.
	InSync Classification = "in-sync"
	// RemoteAhead means the remote changed and there are no local edits.
	RemoteAhead Classification = "remote-ahead"
	// Conflicting means both sides changed since the last reconciliation.
	Conflicting Classification = "conflicting"
	// RemoteMissing means no remote resource exists yet.
	RemoteMissing Classification = "remote-missing"
)

// Classify compares the remote modification time with the creation time of
// the base token recorded at the last reconciliation. An empty base decodes
// to the zero time, so any existing remote is newer.
func Classify(base domain.VersionToken, remoteModified time.Time, pending bool) Classification {
	if !remoteModified.After(base.CreatedAt()) {
		return InSync
	}
	if pending {
		return Conflicting
	}
	return RemoteAhead
}

// reconciledAt returns the instant a token minted after a remote write must
// carry so that the write classifies as InSync: the later of now and the
// remote time, rounded up to the token's millisecond resolution.
func reconciledAt(now, remoteModified time.Time) time.Time {
	t := now
	if remoteModified.After(t) {
		t = remoteModified
	}
	if trunc := t.Truncate(time.Millisecond); !trunc.Equal(t) {
		return trunc.Add(time.Millisecond)
	}
	return t
}
