package catalogsync

import (
	"sort"
	"time"

	"github.com/vitrine/backend/internal/domain/integration"
)

// LocalIndexEntry is the discovery view of one mirror row
type LocalIndexEntry struct {
	RemoteID      int64
	LastModified  time.Time
	Dirty         bool
	PendingDelete bool
}

// DiscoveryResult is the set difference between the remote index and the local mirror.
// Every id appears in at most one of MissingIDs and ChangedIDs.
type DiscoveryResult struct {
	// MissingIDs exist remotely but not locally
	MissingIDs []int64 `json:"missing_ids"`
	// ChangedIDs exist on both sides and the remote copy is strictly newer
	ChangedIDs []int64 `json:"changed_ids"`
	// RemovedRemotely exist locally but no longer remotely. Reported only.
	RemovedRemotely []int64 `json:"removed_remotely"`
	// ToCreateRemote are provisional local rows without an active create in the queue
	ToCreateRemote []int64 `json:"to_create_remote"`
	// ToUpdateRemote are dirty local rows without an active update in the queue
	ToUpdateRemote []int64 `json:"to_update_remote"`
	// ToDeleteRemote are locally deleted rows without an active delete in the queue
	ToDeleteRemote []int64 `json:"to_delete_remote"`
	// Conflicts changed on both sides since the last sync. Flagged, never resolved here.
	Conflicts    []int64   `json:"conflicts"`
	RemoteCount  int       `json:"remote_count"`
	LocalCount   int       `json:"local_count"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// PullIDs returns missing ∪ changed in ascending order
func (r *DiscoveryResult) PullIDs() []int64 {
	ids := make([]int64, 0, len(r.MissingIDs)+len(r.ChangedIDs))
	ids = append(ids, r.MissingIDs...)
	ids = append(ids, r.ChangedIDs...)
	sortIDs(ids)
	return ids
}

// HasLocalOnlyChanges returns true if some local change is not queued yet
func (r *DiscoveryResult) HasLocalOnlyChanges() bool {
	return len(r.ToCreateRemote)+len(r.ToUpdateRemote)+len(r.ToDeleteRemote) > 0
}

// Diff computes the discovery result. It is pure: no I/O, no clock besides `now`.
func Diff(remote []integration.IndexEntry, local []LocalIndexEntry, queued []QueuedRef, now time.Time) *DiscoveryResult {
	remoteByID := make(map[int64]time.Time, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = r.LastModified
	}
	localByID := make(map[int64]LocalIndexEntry, len(local))
	for _, l := range local {
		localByID[l.RemoteID] = l
	}
	active := make(map[QueuedRef]struct{}, len(queued))
	for _, q := range queued {
		active[q] = struct{}{}
	}
	isQueued := func(id int64, op QueueOperation) bool {
		_, ok := active[QueuedRef{EntityID: id, Operation: op}]
		return ok
	}

	res := &DiscoveryResult{
		MissingIDs:      []int64{},
		ChangedIDs:      []int64{},
		RemovedRemotely: []int64{},
		ToCreateRemote:  []int64{},
		ToUpdateRemote:  []int64{},
		ToDeleteRemote:  []int64{},
		Conflicts:       []int64{},
		RemoteCount:     len(remoteByID),
		LocalCount:      len(localByID),
		DiscoveredAt:    now.UTC(),
	}

	for id, remoteModified := range remoteByID {
		l, ok := localByID[id]
		if !ok {
			res.MissingIDs = append(res.MissingIDs, id)
			continue
		}
		if !remoteModified.After(l.LastModified) {
			continue
		}
		res.ChangedIDs = append(res.ChangedIDs, id)
		if l.Dirty || isQueued(id, QueueOperationUpdate) || isQueued(id, QueueOperationDelete) {
			res.Conflicts = append(res.Conflicts, id)
		}
	}

	for id, l := range localByID {
		switch {
		case id < 0:
			if !l.PendingDelete && !isQueued(id, QueueOperationCreate) {
				res.ToCreateRemote = append(res.ToCreateRemote, id)
			}
		case l.PendingDelete:
			if !isQueued(id, QueueOperationDelete) {
				res.ToDeleteRemote = append(res.ToDeleteRemote, id)
			}
		default:
			if _, ok := remoteByID[id]; !ok {
				res.RemovedRemotely = append(res.RemovedRemotely, id)
			}
			if l.Dirty && !isQueued(id, QueueOperationUpdate) {
				res.ToUpdateRemote = append(res.ToUpdateRemote, id)
			}
		}
	}

	for _, ids := range [][]int64{
		res.MissingIDs, res.ChangedIDs, res.RemovedRemotely, res.ToCreateRemote,
		res.ToUpdateRemote, res.ToDeleteRemote, res.Conflicts,
	} {
		sortIDs(ids)
	}
	return res
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
