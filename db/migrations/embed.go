// Package migrations embeds the PostgreSQL schema applied by database.Migrator.
package migrations

import "embed"

// FS holds the versioned *.sql files.
//
//go:embed *.sql
var FS embed.FS
