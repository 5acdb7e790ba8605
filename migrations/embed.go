// Package migrations carries the SQL schema applied by database.MigrationExecutor
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files
//
//go:embed *.sql
var FS embed.FS
