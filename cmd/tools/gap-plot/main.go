// gap-plot renders per-address inter-advertisement gap series from an
// advertising capture CSV, one PNG per address, for eyeballing advertising
// cadence and the silences the detectors alert on.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/hujon/ble-monitoring-probe/internal/model"
)

var (
	outputDir = flag.String("output", "plots", "Directory for the rendered PNGs")
	topN      = flag.Int("top", 4, "Plot only the N addresses with the most samples")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <capture.csv>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	gaps, err := loadGaps(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to load capture: %v", err)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	addresses := make([]string, 0, len(gaps))
	for addr := range gaps {
		addresses = append(addresses, addr)
	}
	sort.Slice(addresses, func(i, j int) bool {
		return len(gaps[addresses[i]]) > len(gaps[addresses[j]])
	})
	if *topN > 0 && len(addresses) > *topN {
		addresses = addresses[:*topN]
	}

	for _, addr := range addresses {
		out := filepath.Join(*outputDir, strings.ReplaceAll(addr, ":", "-")+".png")
		if err := plotGaps(addr, gaps[addr], out); err != nil {
			log.Fatalf("failed to plot %s: %v", addr, err)
		}
		log.Printf("wrote %s (%d samples)", out, len(gaps[addr]))
	}
}

// loadGaps extracts per-address gap series (ms) from an advertising capture.
func loadGaps(path string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	addrIdx, tsIdx := -1, -1
	for i, col := range header {
		switch col {
		case "Address":
			addrIdx = i
		case "Timestamp":
			tsIdx = i
		}
	}
	if addrIdx < 0 || tsIdx < 0 {
		return nil, fmt.Errorf("capture header missing Address/Timestamp columns: %v", header)
	}

	gaps := make(map[string][]float64)
	lastSeen := make(map[string]int64)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if addrIdx >= len(row) || tsIdx >= len(row) {
			continue
		}
		ts, err := model.ParseTimestamp(row[tsIdx])
		if err != nil {
			continue
		}
		addr := row[addrIdx]
		if last, ok := lastSeen[addr]; ok {
			gaps[addr] = append(gaps[addr], float64(ts-last))
		}
		lastSeen[addr] = ts
	}
	return gaps, nil
}

func plotGaps(address string, gaps []float64, out string) error {
	p := plot.New()
	p.Title.Text = address
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "gap (ms)"

	xys := make(plotter.XYs, len(gaps))
	for i, g := range gaps {
		xys[i].X = float64(i)
		xys[i].Y = g
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	p.Add(plotter.NewGrid(), line)

	return p.Save(8*vg.Inch, 4*vg.Inch, out)
}
