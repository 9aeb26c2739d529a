// Package migrations holds the schema for every supported SQL dialect.
package migrations

import "embed"

// FS contains one directory of goose migrations per dialect.
//
//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS
