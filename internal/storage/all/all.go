// Package all links every storage backend and the SQL Server driver into a
// binary. Commands import it for side effects.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "github.com/ivoytov/forqloz/internal/storage/duckdb"
	_ "github.com/ivoytov/forqloz/internal/storage/mssql"
	_ "github.com/ivoytov/forqloz/internal/storage/postgres"
	_ "github.com/ivoytov/forqloz/internal/storage/sqlite"
)
