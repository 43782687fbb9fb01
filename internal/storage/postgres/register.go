package postgres

import "github.com/ivoytov/forqloz/internal/storage"

func init() {
	// registers the postgres backend factory
	storage.Register("postgres", New)
}
