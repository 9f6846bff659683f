//go:build libsql

package store

import (
	"strings"

	_ "github.com/tursodatabase/go-libsql"
)

// Built with -tags libsql the store runs on the embedded libSQL engine
// instead of the pure-Go driver. Requires cgo.
const driverName = "libsql"

func dataSourceName(path string) string {
	return "file:" + strings.TrimPrefix(path, "file:")
}
