package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/quackphp/quack/internal/deduce"
	"github.com/quackphp/quack/internal/evidence"
	"github.com/quackphp/quack/internal/report"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/debug_reduce/main.go <joe_analyze.out> <availclass.json>")
		os.Exit(1)
	}

	evidencePath, availPath := os.Args[1], os.Args[2]

	sites, err := evidence.LoadCallSites(evidencePath)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}

	records, err := evidence.LoadAvailableClasses(availPath)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}

	fmt.Printf("Auditing %d call sites from %s\n\n", len(sites), evidencePath)

	reports, err := deduce.NewConsolidator(1).Run(sites, records)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}

	for _, r := range reports {
		report.PrintAudit(os.Stdout, r)
	}

	fmt.Println()
	report.PrintSummary(os.Stdout, reports)
}
