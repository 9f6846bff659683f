//go:build !libsql

package store

import (
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const driverName = "sqlite3"

// dataSourceName builds the ncruces DSN. Pragmas go in the DSN so every pooled
// connection gets them, and write transactions take the lock up front.
func dataSourceName(path string) string {
	path = strings.TrimPrefix(path, "file:")
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}
