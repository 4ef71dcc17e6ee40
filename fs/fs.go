package appfs

import "embed"

// FS holds the SQL migrations and email templates shipped with the binaries.
//go:embed migrations all:templates
var FS embed.FS
