package database

import "database/sql"

// DatabaseService persists the plugin settings as flat key/value pairs
type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// GetValues returns every stored key/value pair
	GetValues() (map[string]string, error)
	// SetValues upserts all pairs in a single transaction so readers never see a partial save
	SetValues(values map[string]string) error
}
