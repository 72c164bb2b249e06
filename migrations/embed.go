// Package migrations embeds the SQLite schema for the nv_region store.
package migrations

import "embed"

// FS holds every *.sql file in this directory. Pass it to
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
