// Package migrations holds the SQL schema applied with golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
