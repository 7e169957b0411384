package cache

import (
	"sort"

	"github.com/vitrine/backend/internal/domain/catalogsync"
)

// cloneRun copies a run so stored snapshots are not changed by the running orchestrator
func cloneRun(run *catalogsync.SyncRun) *catalogsync.SyncRun {
	c := *run
	if run.Discovery != nil {
		d := *run.Discovery
		c.Discovery = &d
	}
	if run.Pull != nil {
		p := *run.Pull
		p.FailedIDs = append([]int64(nil), run.Pull.FailedIDs...)
		c.Pull = &p
	}
	if run.Push != nil {
		p := *run.Push
		p.FailedItems = append(p.FailedItems[:0:0], run.Push.FailedItems...)
		c.Push = &p
	}
	if run.FinishedAt != nil {
		f := *run.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}

func sortRuns(runs []*catalogsync.SyncRun) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].EntityType < runs[j].EntityType
	})
}
