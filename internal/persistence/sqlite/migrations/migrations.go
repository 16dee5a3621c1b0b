// Package migrations embeds the goose SQL migrations of the cache database.
package migrations

import "embed"

// FS holds the versioned migration files.
//
//go:embed *.sql
var FS embed.FS
