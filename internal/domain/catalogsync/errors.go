package catalogsync

import "errors"

var (
	ErrMirrorEntityNotFound   = errors.New("catalogsync: mirrored entity not found")
	ErrQueueItemNotFound      = errors.New("catalogsync: queue item not found")
	ErrSyncStatusNotFound     = errors.New("catalogsync: sync status not found")
	ErrRunNotFound            = errors.New("catalogsync: sync run not found")
	ErrSyncInProgress         = errors.New("catalogsync: sync already in progress")
	ErrInvalidOrganization    = errors.New("catalogsync: invalid organization id")
	ErrInvalidQueueItem       = errors.New("catalogsync: invalid queue item")
	ErrInvalidQueueTransition = errors.New("catalogsync: invalid queue status transition")
	ErrInvalidRunTransition   = errors.New("catalogsync: invalid sync run transition")
	ErrInvalidPayload         = errors.New("catalogsync: payload must be a JSON object")
	ErrNoIDs                  = errors.New("catalogsync: no entity ids given")
	ErrEntityPendingDelete    = errors.New("catalogsync: entity is deleted locally")
)
