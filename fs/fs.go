// Package appfs embeds the database migrations and email templates into the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/*
var FS embed.FS

const MigrationsDir = "migrations"
