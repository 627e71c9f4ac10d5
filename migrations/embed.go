// Package migrations embeds the SQL schema so the binary can migrate a
// fresh database without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
