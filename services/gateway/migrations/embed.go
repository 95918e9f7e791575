// Package migrations embeds the gateway's PostgreSQL schema.
package migrations

import "embed"

// FS holds the *.up.sql files at its root, ready for database.NewMigrator.
//
//go:embed *.up.sql
var FS embed.FS
