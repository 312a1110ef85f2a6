package database

import (
	"fmt"
)

// Open connects to the database behind a store driver ("postgres" or
// "sqlite") and, when migrate is set, brings the schema up to date. The
// memory driver has no database and yields nil, nil.
func Open(driver, databaseURL, sqlitePath string, migrate bool) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch Dialect(driver) {
	case DialectPostgres:
		db, err = New(DialectPostgres, databaseURL)
	case DialectSQLite:
		db, err = New(DialectSQLite, sqlitePath)
	case "memory":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if migrate {
		if _, err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
