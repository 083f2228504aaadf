// Package migrations embeds the SQL schema of the SQLite store.
package migrations

import "embed"

// FS holds the numbered migration files. Only *.up.sql files are applied.
//
//go:embed *.sql
var FS embed.FS
