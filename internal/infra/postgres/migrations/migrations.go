package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema migrations, registered by each versioned file's init.
var Migrations = migrate.NewMigrations()
