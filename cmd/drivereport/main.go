package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"inverter-drive/internal/recorder"
	"inverter-drive/internal/report"
	"inverter-drive/internal/store"
)

func main() {
	dbPath := pflag.String("db", "data/drivesim.db", "run journal")
	runID := pflag.String("run", "", "run id (default: most recent run)")
	csvPath := pflag.String("csv", "data/simulation.csv", "sample recording, empty to omit the chart")
	out := pflag.StringP("out", "o", "report.pdf", "output file")
	pflag.Parse()

	if err := run(*dbPath, *runID, *csvPath, *out); err != nil {
		fmt.Fprintf(os.Stderr, "drivereport: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("report written to %s\n", *out)
}

func run(dbPath, runID, csvPath, out string) error {
	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if runID == "" {
		runs, err := s.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs in %s", dbPath)
		}
		runID = runs[0].ID
	}
	r, err := s.GetRun(runID)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	events, err := s.FaultEvents(runID)
	if err != nil {
		return err
	}

	in := report.Input{Run: r, Events: events}
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		in.Rows, err = recorder.ReadCSV(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := report.GeneratePDF(f, in); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
