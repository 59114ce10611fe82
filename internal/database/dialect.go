package database

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dialect covers the few places where the SQLite and Postgres ledgers differ.
type Dialect struct {
	Name string
}

func SQLite() Dialect   { return Dialect{Name: DriverSQLite} }
func Postgres() Dialect { return Dialect{Name: DriverPostgres} }

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		return SQLite(), nil
	case DriverPostgres, "postgresql", "pg":
		return Postgres(), nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d.Name != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ForUpdate is the row lock suffix for SELECTs inside a ledger transaction.
// SQLite already holds the write lock from BEGIN IMMEDIATE.
func (d Dialect) ForUpdate() string {
	if d.Name == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}
