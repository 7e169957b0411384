// Package migrations holds the versioned SQL schema of the sync engine.
package migrations

import "embed"

// FS contains every *.up.sql / *.down.sql pair, named NNNNNN_description
//
//go:embed *.sql
var FS embed.FS
