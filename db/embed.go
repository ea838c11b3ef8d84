// Package db carries the goose migrations that own the marketpulse schema.
package db

import "embed"

// Migrations holds every SQL migration, applied with goose.SetBaseFS(Migrations) and dir "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads from.
const MigrationsDir = "migrations"
