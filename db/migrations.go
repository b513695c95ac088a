package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the path of the migrations inside the embedded FS
const MigrationsDir = "migrations"
