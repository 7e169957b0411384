// Package integration contains the Integration bounded context.
// This context describes the remote catalog an organization mirrors locally.
//
// Key concepts:
//   - RemoteResource: Port interface for one entity kind on the remote catalog (products, customers, orders)
//   - RemoteCatalog: The set of remote resources reachable with one organization's credentials
//   - RemoteIntegration: Entity holding an organization's remote endpoint and credentials
//   - RemoteError: Classified failure of a remote call (unavailable vs rejected)
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
