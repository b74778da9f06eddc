// migrations содержит SQL-миграции схемы и встроенную FS для goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
