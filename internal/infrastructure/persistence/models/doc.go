// Package models contains the GORM persistence models of the sync engine.
// They are kept apart from the domain types; each model converts to and
// from its domain counterpart and repositories only speak models to the database.
//
// Tables:
// - mirror.go: one mirror table per entity type (mirrored_products, mirrored_customers, mirrored_orders)
// - sync.go: sync_status bookkeeping and the sync_queue
// - remote_integration.go: per organization remote endpoint and credentials
package models
