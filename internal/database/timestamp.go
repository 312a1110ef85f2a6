package database

import (
	"fmt"
	"time"
)

// sqliteTimeFormats are the layouts modernc.org/sqlite and SQLite's own
// datetime functions write into TEXT/DATETIME columns.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// timestamp scans either a driver time.Time or a sqlite text timestamp into a UTC time.
type timestamp struct {
	t *time.Time
}

func timestampDest(t *time.Time) *timestamp {
	return &timestamp{t: t}
}

// Scan implements sql.Scanner.
func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ts.t = time.Time{}
		return nil
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case int64:
		*ts.t = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return ts.parse(string(v))
	case string:
		return ts.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts *timestamp) parse(s string) error {
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
