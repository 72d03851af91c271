// Command capture runs one bounded capture session without the HTTP server
// and prints the outcome of every capture event.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gatecam/internal/app"
	"gatecam/internal/config"
	"gatecam/internal/dto"
	"gatecam/internal/logger"
	"gatecam/internal/model"
	"gatecam/internal/repository"
	"gatecam/internal/repository/sqlite"
	"gatecam/internal/service"
	"gatecam/internal/service/capture"
	"gatecam/internal/service/storage"
	"gatecam/internal/vision"
)

func main() {
	cfg := config.Load()

	cameras := flag.String("cameras", "", "Comma separated camera indices (empty = probe)")
	all := flag.Bool("all", false, "Include the built-in camera when probing")
	location := flag.String("location", "", "Location id sent with every capture (required)")
	modelID := flag.String("model", "", "Model id sent with every capture")
	direction := flag.String("direction", "in", "Traffic direction: in or out")
	maxRuntime := flag.Duration("max-runtime", cfg.MaxRuntime, "Session runtime limit (0 = until interrupted)")
	maxCaptures := flag.Int("max-captures", cfg.MaxCaptures, "Capture limit (0 = unlimited)")
	forwardURL := flag.String("forward-url", cfg.ForwardURL, "Endpoint receiving capture images")
	detector := flag.String("detector", cfg.Detector, "Detector variant: local or remote")
	outDir := flag.String("out", cfg.CaptureDirectory, "Directory keeping a copy of every capture")
	dbPath := flag.String("db", "", "Record captures in this SQLite database")
	verbose := flag.Bool("v", false, "Write logs to the log directory")
	flag.Parse()

	indices, err := parseIndices(*cameras)
	if err != nil {
		log.Fatalf("Invalid -cameras: %v", err)
	}

	cfg.MaxRuntime = *maxRuntime
	cfg.MaxCaptures = *maxCaptures
	cfg.ForwardURL = *forwardURL
	cfg.Detector = *detector

	logs := logger.Discard()
	if *verbose {
		logs = logger.NewLogger(cfg)
	}
	defer logs.Close()

	var captureRepo repository.CaptureRepository
	if *dbPath != "" {
		db, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		captureRepo = sqlite.NewCaptureRepository(db)
	}

	var archive *storage.BufferService
	if *outDir != "" {
		archive = storage.NewBufferService(*outDir, cfg.CaptureBufferLimit, logs)
		defer archive.FlushImages()
	}

	mng := service.NewManager(service.Deps{
		Cameras:     app.NewCameraManager(cfg, logs),
		Encoder:     vision.Encoder{},
		Forwarder:   capture.NewHTTPForwarder(cfg.ForwardURL, cfg.ForwardTimeout),
		NewDetector: app.DetectorFactory(cfg, logs),
		Repository:  captureRepo,
		Archive:     archive,
	}, service.OptionsFromConfig(cfg), logs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	usbOnly := !*all
	resp, err := mng.Start(ctx, dto.StartRequest{
		LocationID:    *location,
		ModelID:       *modelID,
		Direction:     *direction,
		CameraIndices: indices,
		USBOnly:       &usbOnly,
	})
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	fmt.Printf("🎬 Capturing on cameras %v at %s\n", resp.Opened, resp.LocationID)

	// A bound ends the session on its own; only an interrupt needs Stop.
	select {
	case <-mng.Done():
	case <-ctx.Done():
		fmt.Println("⏹️  Interrupted")
		mng.Stop()
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ForwardTimeout+5*time.Second)
	defer cancel()
	if err := mng.Wait(waitCtx); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Some forwards did not finish: %v\n", err)
	}

	printSummary(mng.Session())
}

func parseIndices(v string) ([]int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad camera index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func printSummary(info dto.SessionInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCAMERA\tTRACK\tSTATUS\tCODE\tFILE")

	counts := make(map[model.CaptureStatus]int)
	for _, ev := range info.Events {
		counts[ev.Status]++
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\n",
			ev.At.Format("15:04:05.000"), ev.CameraID, ev.TrackID, ev.Status, ev.StatusCode, ev.Filename)
	}
	w.Flush()

	fmt.Printf("\n%d capture(s): %d forwarded, %d failed, %d dropped, %d skipped (%s)\n",
		len(info.Events),
		counts[model.CaptureForwarded], counts[model.CaptureFailed],
		counts[model.CaptureDropped], counts[model.CaptureSkipped],
		info.StopReason)
}
