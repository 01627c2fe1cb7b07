// The collector drives one or more BLE capture peripherals over serial,
// synchronizes their capture start, and persists every decoded advertising
// observation (or raw HCI frame, or timing sample) into a single output file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hujon/ble-monitoring-probe/internal/capture"
	"github.com/hujon/ble-monitoring-probe/internal/config"
	"github.com/hujon/ble-monitoring-probe/internal/seriallink"
	"github.com/hujon/ble-monitoring-probe/internal/sink"
)

var (
	configPath = flag.String("config", config.DefaultPath, "Configuration file")
	output     = flag.String("output", "", "Output file, overwritten if present (default capture/YYYY-mm-dd_HH-MM.csv)")
	rawMode    = flag.Bool("raw", false, "Capture raw HCI packets into a pcap trace (requires the raw collector firmware)")
	timingMode = flag.Bool("timing", false, "Perform timing testing only (requires the beeper firmware)")
)

func main() {
	flag.Parse()

	if *rawMode && *timingMode {
		log.Fatal("-raw and -timing are mutually exclusive")
	}
	mode := capture.ModeAdvertising
	switch {
	case *rawMode:
		mode = capture.ModeRaw
	case *timingMode:
		mode = capture.ModeTiming
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	devices := cfg.EnabledDevices()
	if len(devices) == 0 {
		log.Fatal("no enabled devices in configuration")
	}

	outPath := *output
	if outPath == "" {
		outPath = filepath.Join("capture", time.Now().UTC().Format("2006-01-02_15-04")+".csv")
	}
	if mode == capture.ModeRaw {
		outPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".pcap"
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create output directory: %v", err)
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}

	var out *sink.Sink
	switch mode {
	case capture.ModeRaw:
		fmt.Println("Raw BLE Advertising Collection")
		out, err = sink.NewRawSink(f, os.Stderr)
	case capture.ModeTiming:
		fmt.Println("Performing Timing Testing")
		out, err = sink.NewTimingSink(f, os.Stderr)
	default:
		fmt.Println("BLE Advertising Collection")
		out, err = sink.NewAdvertisingSink(f, os.Stderr)
	}
	if err != nil {
		log.Fatalf("failed to prepare output: %v", err)
	}

	barrier := capture.NewStartBarrier(len(devices))
	var wg sync.WaitGroup
	for _, dev := range devices {
		link, err := seriallink.Open(dev.Path, dev.BaudRate())
		if err != nil {
			log.Fatalf("failed to open %s: %v", dev.Path, err)
		}
		session := capture.NewSession(dev.Label(), link, out, mode)
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Sessions log their own termination through the sink.
			_ = session.Run(barrier)
		}()
	}

	// Unblock all sessions at once to minimise relative capture-start skew.
	barrier.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Sessions run until their link fails; getting here means every
		// peripheral disconnected.
		log.Print("all capture sessions terminated")
	case <-ctx.Done():
		fmt.Println() // end the ^C line
	}

	if err := out.Close(); err != nil {
		log.Printf("failed to flush output: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Printf("failed to close output: %v", err)
	}
}
