// Package band classifies radio frequencies into named bands using an
// ordered band plan.
//
// A band plan is a semicolon-delimited table with one record per line:
//
//	name;min_MHz;max_MHz
//
// Ranges may overlap (a CB allocation sitting next to or inside an amateur
// band), so the table keeps file order and the first matching range wins.
package band

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ErrMalformedTable is returned when a band plan line cannot be parsed.
var ErrMalformedTable = errors.New("malformed band plan")

//go:embed bandplan_MHz.csv
var embeddedPlan string

// FrequencyRange is an inclusive range of frequencies in Hz.
type FrequencyRange struct {
	Minimum int64
	Maximum int64
}

// Contains reports whether hz lies within the range, bounds included.
func (r FrequencyRange) Contains(hz int64) bool {
	return r.Minimum <= hz && hz <= r.Maximum
}

// Table is an ordered, read-only mapping of band name to frequency range.
type Table struct {
	names  []string
	ranges []FrequencyRange
}

// ParseTable reads a band plan. Blank lines are skipped. A repeated name
// replaces the earlier range but keeps the earlier position.
func ParseTable(r io.Reader) (*Table, error) {
	t := &Table{}
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ";")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected 3 fields, got %d", ErrMalformedTable, lineNo, len(parts))
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("%w: line %d: empty band name", ErrMalformedTable, lineNo)
		}
		lo, err := parseMHz(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: minimum: %w", ErrMalformedTable, lineNo, err)
		}
		hi, err := parseMHz(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: maximum: %w", ErrMalformedTable, lineNo, err)
		}

		rng := FrequencyRange{Minimum: lo, Maximum: hi}
		if i, ok := index[name]; ok {
			t.ranges[i] = rng
			continue
		}
		index[name] = len(t.names)
		t.names = append(t.names, name)
		t.ranges = append(t.ranges, rng)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read band plan: %w", err)
	}
	return t, nil
}

// Load parses the band plan file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open band plan: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	return ParseTable(f)
}

var defaultTable = sync.OnceValues(func() (*Table, error) {
	return ParseTable(strings.NewReader(embeddedPlan))
})

// Default returns the built-in band plan. It is parsed on first use and
// shared for the lifetime of the process.
func Default() *Table {
	t, err := defaultTable()
	if err != nil {
		// The embedded plan is fixed at build time; a parse failure is a build defect.
		panic(fmt.Sprintf("band: embedded band plan: %v", err))
	}
	return t
}

// Classify returns the name of the first band containing hz.
// A frequency outside every band is reported with ok=false.
func (t *Table) Classify(hz int64) (name string, ok bool) {
	for i, r := range t.ranges {
		if r.Contains(hz) {
			return t.names[i], true
		}
	}
	return "", false
}

// Range returns the frequency range registered for name.
func (t *Table) Range(name string) (FrequencyRange, bool) {
	for i, n := range t.names {
		if n == name {
			return t.ranges[i], true
		}
	}
	return FrequencyRange{}, false
}

// Names returns the band names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of bands in the table.
func (t *Table) Len() int { return len(t.names) }

// parseMHz converts a decimal MHz value to Hz, truncating any fraction of a Hz.
func parseMHz(s string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(v * 1_000_000), nil
}
