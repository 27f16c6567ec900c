// Package migrations embeds the PostgreSQL catalog schema for goose.
package migrations

import "embed"

// Migrations holds the versioned SQL files.
//
//go:embed *.sql
var Migrations embed.FS
