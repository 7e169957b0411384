// Package catalogsync contains the catalog synchronization bounded context.
//
// A local mirror of the remote catalog is kept per organization and entity type.
// Remote to local changes are pulled after a discovery diff; local to remote
// changes are pushed through a durable queue with retry and backoff.
//
// Key concepts:
//   - MirrorEntity: Local copy of one remote entity, plus local change markers
//   - SyncStatus: Per (organization, entity type) sync bookkeeping and the is-syncing guard
//   - SyncQueueItem: One pending local to remote operation
//   - DiscoveryResult: Set differences between the remote index and the local mirror
//   - SyncRun: Progress of one synchronization run
package catalogsync
