// Command genmock writes a synthetic campaign of raw counter files and a
// matching ini file. Setpoints cycle through the instrument table, counts
// follow a power law in supersaturation and the column gradient is derived
// from the calibration so the processed output is predictable.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -start 2025-06-01 -days 2
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
	"github.com/couchcryptid/ccn-data-etl/internal/ingest"
)

type campaign struct {
	start      time.Time
	days       int
	cycle      time.Duration // time spent at each setpoint
	slope      float64
	intercept  float64
	gap        float64 // probability a minute is missing
	noise      float64 // relative count noise
	setpoints  []domain.Setpoint
	updated    time.Time
	activation float64 // power-law exponent of N(ss)
}

// stats holds aggregated counts for the end-of-run report.
type stats struct {
	files   int
	bytes   uint64
	rows    int
	missing int
	perSS   map[domain.Setpoint]int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory for the generated files")
	start := flag.String("start", "2025-06-01", "first UTC day of the campaign (YYYY-MM-DD)")
	days := flag.Int("days", 1, "number of daily files")
	cycle := flag.Duration("cycle", 12*time.Minute, "time spent at each setpoint")
	slope := flag.Float64("slope", 10, "temperature gradient calibration slope")
	intercept := flag.Float64("intercept", 0, "temperature gradient calibration intercept")
	gap := flag.Float64("gap", 0.02, "probability that a minute is missing")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *outDir == "" || *days < 1 || *slope == 0 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out-dir, -days, -slope")
	}
	day, err := time.ParseInLocation(time.DateOnly, *start, time.UTC)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	c := campaign{
		start:      day,
		days:       *days,
		cycle:      *cycle,
		slope:      *slope,
		intercept:  *intercept,
		gap:        *gap,
		noise:      0.05,
		setpoints:  ingest.DefaultSetpoints,
		updated:    day.AddDate(0, -3, 0),
		activation: 0.6,
	}
	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	st := stats{perSS: map[domain.Setpoint]int{}}
	for d := range c.days {
		date := c.start.AddDate(0, 0, d)
		path := filepath.Join(*outDir, "CCN 100 data "+date.Format("060102")+".csv")
		body := c.day(date, rng, &st)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		st.files++
		st.bytes += uint64(len(body))
		log.Printf("wrote %s", path)
	}

	iniPath := filepath.Join(*outDir, "CCN.ini")
	if err := os.WriteFile(iniPath, []byte(c.ini()), 0o600); err != nil {
		return fmt.Errorf("writing ini: %w", err)
	}
	log.Printf("wrote %s", iniPath)

	printStats(c, st)
	return nil
}

// day renders one daily raw file.
func (c campaign) day(date time.Time, rng *rand.Rand, st *stats) string {
	headers := []string{ingest.TimeColumn}
	units := []string{"UTC"}
	for _, col := range ingest.Columns {
		headers = append(headers, `"`+col.Header+`"`)
		units = append(units, col.Name)
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ",") + "\n")
	b.WriteString(strings.Join(units, ",") + "\n")

	perCycle := int(c.cycle / time.Minute)
	if perCycle < 1 {
		perCycle = 1
	}
	for i := range 24 * 60 {
		if rng.Float64() < c.gap {
			st.missing++
			continue
		}
		t := date.Add(time.Duration(i) * time.Minute)
		sp := c.setpoints[(i/perCycle)%len(c.setpoints)]
		ss := float64(sp)

		n := 1000 * math.Pow(ss, c.activation) * (1 + c.noise*rng.NormFloat64())
		t1 := 22 + 0.2*rng.NormFloat64()
		t2 := t1 + (ss*c.slope+c.intercept)/2
		tInlet := 24 + 0.3*rng.NormFloat64()
		p := 1013.25 + 2*rng.NormFloat64()
		q := 0.5 + 0.005*rng.NormFloat64()

		// N, TInlet, T1, T2, T3, TSample, TOPC, TNafion, QSample, QSheath, SetpointSS, PSample
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.4f,%.4f,%g,%.2f\n",
			t.Format("2006-01-02 15:04:05"),
			math.Max(n, 0), tInlet, t1, t2, t2+4, 25.0, 27.0, 23.0, q, 10*q, ss, p)

		st.rows++
		st.perSS[sp]++
	}
	return b.String()
}

func (c campaign) ini() string {
	return fmt.Sprintf(`[Calibration]
%s = %g
%s = %g
%s = %g
%s = %s
`,
		ingest.LabelTGDum, c.intercept,
		ingest.LabelSlope, c.slope,
		ingest.LabelIntercept, c.intercept,
		ingest.LabelLastUpdated, c.updated.Format(time.DateOnly),
	)
}

func printStats(c campaign, st stats) {
	fmt.Println("\n=== Generated campaign ===")
	fmt.Printf("Files: %d (%s)\n", st.files, humanize.Bytes(st.bytes))
	fmt.Printf("Rows: %s, missing minutes: %s\n", humanize.Comma(int64(st.rows)), humanize.Comma(int64(st.missing)))
	fmt.Printf("Calibration: slope=%g intercept=%g\n", c.slope, c.intercept)
	fmt.Print("Rows per setpoint:")
	for _, sp := range c.setpoints {
		fmt.Printf(" %s=%d", sp, st.perSS[sp])
	}
	fmt.Println()
}
