// Package dialect captures the per-backend SQL surface the core needs:
// parameter placeholder style, identifier quoting, and row-locking support.
// Concrete dialects are registered at init time and resolved by driver name.
package dialect

import (
	"strconv"
	"strings"
)

// Dialect describes backend-specific SQL rendering rules.
type Dialect struct {
	// Name is the driver/dialect name (e.g. "sqlite", "postgres")
	Name string

	// QuoteStart/QuoteEnd delimit quoted identifiers; QuoteEnd occurrences
	// inside a name are escaped by doubling
	QuoteStart string
	QuoteEnd   string

	// Positional indicates $n placeholders; otherwise ? placeholders
	Positional bool

	// RowLock indicates SELECT ... FOR UPDATE is supported. Backends without
	// it serialize writers at the connection/transaction level instead.
	RowLock bool
}

// Placeholder returns the parameter placeholder for the 1-based position n.
func (d *Dialect) Placeholder(n int) string {
	if d.Positional {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// QuoteIdentifier quotes an identifier using the dialect's quote characters.
// Quote end characters inside the name are doubled.
func (d *Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.QuoteEnd, d.QuoteEnd+d.QuoteEnd)
	return d.QuoteStart + escaped + d.QuoteEnd
}

var registry = map[string]*Dialect{}

// Register adds a dialect under its name. Later registrations win, which
// allows tests to install variants.
func Register(d *Dialect) {
	registry[d.Name] = d
}

// Get returns the dialect registered under name.
func Get(name string) (*Dialect, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names returns the registered dialect names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func init() {
	Register(&Dialect{Name: "sqlite", QuoteStart: `"`, QuoteEnd: `"`})
	Register(&Dialect{Name: "duckdb", QuoteStart: `"`, QuoteEnd: `"`})
	Register(&Dialect{Name: "postgres", QuoteStart: `"`, QuoteEnd: `"`, Positional: true, RowLock: true})
}
