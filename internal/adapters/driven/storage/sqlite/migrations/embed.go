// Package migrations embeds the versioned DDL applied to state.db on open.
package migrations

import "embed"

// FS holds the numbered .sql migration files, applied in order by the
// store's migrate step.
//
//go:embed *.sql
var FS embed.FS
