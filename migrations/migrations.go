// Package migrations embeds the SQL migrations of the local registry.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
