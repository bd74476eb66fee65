package migrations

import "embed"

// FS contains embedded SQLite migrations for wallet storage.
//
//go:embed *.sql
var FS embed.FS
