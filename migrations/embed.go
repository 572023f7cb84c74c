// Package migrations embeds the versioned schema for every supported driver.
// Each driver has its own directory named after its database/sql driver name.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite3/*.sql
var FS embed.FS
