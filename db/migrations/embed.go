// Package migrations embeds the SQL schema migrations so that binaries and
// tests apply the same files without locating them on disk.
package migrations

import "embed"

// FS holds every *.sql migration, applied in lexical filename order.
//
//go:embed *.sql
var FS embed.FS
