// Command validate checks a WSJT-X ALL.TXT decode log before it is replayed.
// It verifies that every line parses, that entries fall inside the band
// plan, that sender grids resolve to a distance and heading, and that the
// log is in chronological order.
//
// Usage:
//
//	go run ./cmd/validate --log ALL.TXT --grid MH09me [--bandplan plan.csv]
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/band"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/geodesic"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// summary counts what the log contains.
type summary struct {
	lines   int
	entries int
	bands   map[string]int
	modes   map[string]int
}

func main() {
	logPath := pflag.String("log", "ALL.TXT", "path of the WSJT-X decode log")
	grid := pflag.String("grid", "", "receiver Maidenhead grid")
	bandplan := pflag.String("bandplan", "", "band plan CSV (default: embedded plan)")
	pflag.Parse()

	if *grid == "" {
		pflag.Usage()
		os.Exit(1)
	}

	if code := run(*logPath, *grid, *bandplan, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(logPath, grid, bandplan string, out io.Writer) int {
	bands := band.Default()
	if bandplan != "" {
		var err error
		if bands, err = band.Load(bandplan); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load band plan: %v\n", err)
			return 1
		}
	}

	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open log: %v\n", err)
		return 1
	}
	defer f.Close()

	fmt.Fprintln(out, "=== WSJT-X Decode Log Validation ===")
	fmt.Fprintln(out)

	parser := domain.NewLogLineParser(domain.Receiver{Callsign: "VALIDATE", Grid: grid}, nil)
	enricher := domain.NewEnricher(geodesic.WGS84, bands, nil)

	phases, sum, err := validate(f, parser, enricher)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read log: %v\n", err)
		return 1
	}
	return report(out, phases, sum)
}

// validate reads the log once and runs every phase over it.
func validate(r io.Reader, parser *domain.LogLineParser, enricher *domain.Enricher) ([]*phase, summary, error) {
	parsing := &phase{name: "Every line parses"}
	banding := &phase{name: "Entries fall inside the band plan"}
	geometry := &phase{name: "Sender grids resolve to distance and heading"}
	ordering := &phase{name: "Log is chronological"}

	sum := summary{bands: map[string]int{}, modes: map[string]int{}}
	var last time.Time

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sum.lines++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := parser.Parse(line)
		if err != nil {
			parsing.errorf("line %d: %v", sum.lines, err)
			continue
		}
		if entry == nil {
			continue
		}
		sum.entries++
		sum.modes[entry.Mode.String()]++

		if name, ok := enricher.BandName(*entry); ok {
			sum.bands[name]++
		} else {
			banding.errorf("line %d: %s Hz is outside every band", sum.lines, humanize.Comma(entry.Frequency))
		}

		if entry.HasSenderGrid() {
			if _, err := enricher.DistanceBearing(*entry); err != nil {
				geometry.errorf("line %d: %s: %v", sum.lines, entry.SenderGrid, err)
			}
		}

		if entry.Time.Before(last) {
			ordering.errorf("line %d: %s is earlier than the previous entry (%s)",
				sum.lines, entry.Time.Format(time.DateTime), last.Format(time.DateTime))
		} else {
			last = entry.Time
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, sum, err
	}
	return []*phase{parsing, banding, geometry, ordering}, sum, nil
}

func report(out io.Writer, phases []*phase, sum summary) int {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-46s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Lines: %s, entries: %s\n", humanize.Comma(int64(sum.lines)), humanize.Comma(int64(sum.entries)))
	fmt.Fprintf(out, "Bands: %s\n", formatCounts(sum.bands))
	fmt.Fprintf(out, "Modes: %s\n", formatCounts(sum.modes))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, humanize.Comma(int64(counts[k])))
	}
	return strings.Join(parts, " ")
}
