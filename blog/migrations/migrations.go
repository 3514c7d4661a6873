package migrations

import (
	"embed"

	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
)

//go:embed *.sql
var MigrationFiles embed.FS

var Migrations = postgres.Migrations{Service: "blog", FS: MigrationFiles}
