// Package main implements the ratelake-catalog binary: it queries the
// partition catalog for the files covering a payer, state, and billing
// class, or prints a stored run summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/ratelake/ratelake/internal/catalog"
)

func main() {
	var (
		dbPath       string
		runID        string
		payerSlug    string
		state        string
		billingClass string
		procedureSet string
		taxonomyCode string
		statArea     string
		year         string
		month        string
		asJSON       bool
	)

	flag.StringVar(&dbPath, "db", "catalog.db", "Path to the catalog database")
	flag.StringVar(&runID, "run", "", "Print the summary of a past run instead of querying partitions")
	flag.StringVar(&payerSlug, "payer", "", "Payer slug (required)")
	flag.StringVar(&state, "state", "", "Two-letter state (required)")
	flag.StringVar(&billingClass, "billing-class", "", "Billing class: professional or institutional (required)")
	flag.StringVar(&procedureSet, "procedure-set", "", "Optional procedure set filter")
	flag.StringVar(&taxonomyCode, "taxonomy", "", "Optional primary taxonomy code filter")
	flag.StringVar(&statArea, "stat-area", "", "Optional statistical area filter")
	flag.StringVar(&year, "year", "", "Optional year filter")
	flag.StringVar(&month, "month", "", "Optional month filter")
	flag.BoolVar(&asJSON, "json", false, "Emit results as JSON")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Ratelake Catalog - Partition Discovery\n\n")
		fmt.Fprintf(os.Stderr, "Usage: ratelake-catalog [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ratelake-catalog --db /data/catalog.db --payer aetna --state tx --billing-class professional\n")
		fmt.Fprintf(os.Stderr, "  ratelake-catalog --db /data/catalog.db --run 5ddab0a2-...\n")
	}

	flag.Parse()

	cat, err := catalog.NewCatalog(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer cat.Close()

	ctx := context.Background()

	if runID != "" {
		summary, err := cat.GetRun(ctx, runID)
		if err != nil {
			log.Fatalf("Failed to load run %s: %v", runID, err)
		}
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal summary: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	filter := catalog.Filter{
		PayerSlug:           payerSlug,
		State:               state,
		BillingClass:        billingClass,
		ProcedureSet:        procedureSet,
		PrimaryTaxonomyCode: taxonomyCode,
		StatAreaName:        statArea,
		Year:                year,
		Month:               month,
	}
	if err := filter.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	partitions, err := cat.FindPartitions(ctx, filter)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if asJSON {
		out, err := json.MarshalIndent(partitions, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal partitions: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	if len(partitions) == 0 {
		fmt.Println("No partitions match the filter.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tROWS\tSIZE\tRATE MIN\tRATE MAX\tPERIOD\tUPDATED")
	var totalRows, totalBytes int64
	for _, p := range partitions {
		period := p.YearMonthMin
		if p.YearMonthMax != p.YearMonthMin {
			period = p.YearMonthMin + ".." + p.YearMonthMax
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%s\t%s\n",
			p.Path, p.RowCount, p.SizeBytes, p.RateMin, p.RateMax,
			period, p.UpdatedAt.Format("2006-01-02 15:04"))
		totalRows += p.RowCount
		totalBytes += p.SizeBytes
	}
	w.Flush()
	fmt.Printf("\n%d partitions, %d rows, %d bytes\n", len(partitions), totalRows, totalBytes)
}
