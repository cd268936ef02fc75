package database

// MigrationsFS exposes the embedded migrations to the external test package.
var MigrationsFS = migrationsFS
