// The detector replays a captured advertisement CSV through the selected
// anomaly model and writes the inferred connection alerts plus a full
// per-record model-state trace.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hujon/ble-monitoring-probe/internal/archive"
	"github.com/hujon/ble-monitoring-probe/internal/detect"
)

var (
	detectorName = flag.String("detector", detect.VariantSimpleStatistics,
		"Detector to be used (simple_statistics or sliding_window)")
	outputDir = flag.String("output", "", "Output folder for analysis result files")
	dbPath    = flag.String("db", "", "Optional sqlite database archiving the run and its alerts")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <capture.csv>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	capturePath := flag.Arg(0)

	factory, err := detect.Factory(*detectorName)
	if err != nil {
		log.Fatal(err)
	}

	outDir := *outputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	stem := strings.TrimSuffix(filepath.Base(capturePath), filepath.Ext(capturePath))

	captureFile, err := os.Open(capturePath)
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}
	defer captureFile.Close()

	alertFile, err := os.Create(filepath.Join(outDir, stem+".alerts.csv"))
	if err != nil {
		log.Fatalf("failed to create alert log: %v", err)
	}
	defer alertFile.Close()

	traceFile, err := os.Create(filepath.Join(outDir, stem+".model.csv"))
	if err != nil {
		log.Fatalf("failed to create model trace: %v", err)
	}
	defer traceFile.Close()

	engine := detect.NewEngine(factory)

	if *dbPath != "" {
		db, err := archive.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open archive database: %v", err)
		}
		defer db.Close()

		runID, err := db.RecordRun(capturePath, *detectorName)
		if err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
		engine.SetAlertFunc(func(address string, timestamp, duration int64) error {
			return db.RecordAlert(runID, address, timestamp, duration)
		})
	}

	if err := engine.Run(captureFile, alertFile, traceFile); err != nil {
		log.Fatalf("detection failed: %v", err)
	}
}
