// Package migrations embeds the SQL schema files of every backend.
package migrations

import "embed"

// FS holds one sub-directory of NNN_name.sql files per backend
//
//go:embed sqlite/*.sql postgres/*.sql pgdoc/*.sql
var FS embed.FS
