package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stim2cone/internal/runlog"
	"stim2cone/pkg/config"
	"stim2cone/pkg/excitation"
	"stim2cone/pkg/pipeline"
	"stim2cone/pkg/scene"
	"stim2cone/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "Path to YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	workers := flag.Int("workers", 0, "Number of concurrent conditions (default: from config)")
	mtf := flag.String("mtf", "", "Comma-separated per-wavelength MTF gains (overrides config)")
	plots := flag.Bool("plots", false, "Write per-condition PNG plots")
	report := flag.Bool("report", false, "Write the HTML run report")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if *configPath == "" {
			flag.Usage()
			os.Exit(1)
		}
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *mtf != "" {
		gains, err := parseGains(*mtf)
		if err != nil {
			log.Fatalf("Invalid -mtf value: %v", err)
		}
		cfg.Pipeline.MTFGains = gains
	}

	logger := zap.NewNop()
	if *verbose || cfg.Output.Verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		defer logger.Sync()
	}

	fmt.Println("================================")
	fmt.Println("STIMULUS-TO-CONE EXCITATION VERIFICATION")
	fmt.Println("================================")

	// Synthesize the stimulus grid and the display it renders on
	stimuli, err := scene.GaborSet(cfg.GaborParams())
	if err != nil {
		log.Fatalf("Failed to synthesize stimuli: %v", err)
	}
	display, err := cfg.BuildDisplay()
	if err != nil {
		log.Fatalf("Failed to build display: %v", err)
	}
	nominalWidth, nominalFOV := cfg.NominalGeometry(display)
	receptors := excitation.GaussianReceptors(display.Wavelengths, cfg.Pipeline.ExtendedReceptors)

	params := &pipeline.Params{
		Stimuli:            stimuli,
		Display:            display,
		Builder:            scene.NewSyntheticBuilder(),
		Receptors:          *receptors,
		MTFGains:           cfg.Pipeline.MTFGains,
		NominalWidthMeters: nominalWidth,
		NominalFOVDegrees:  nominalFOV,
		Tolerance:          cfg.Pipeline.Tolerance,
		GeometryTolerance:  cfg.Pipeline.GeometryTolerance,
		Workers:            cfg.Pipeline.Workers,
		Logger:             logger,
	}

	ctx := context.Background()

	// Bootstrap the reference excitations from the uncorrected path. The
	// main run consumes its own stimulus set, so the reference pass gets
	// a clone.
	fmt.Println("Generating reference excitations...")
	refParams := *params
	refParams.Stimuli = stimuli.Clone()
	refs, err := pipeline.GenerateReferences(ctx, &refParams)
	if err != nil {
		log.Fatalf("Reference generation failed: %v", err)
	}
	params.References = refs

	plotter := visualization.NewPlotter()
	params.Observers = []pipeline.Observer{plotter}

	it, err := pipeline.New(params)
	if err != nil {
		log.Fatalf("Pipeline setup failed: %v", err)
	}

	fmt.Println("Running condition grid...")
	startTime := time.Now()
	agg, err := it.Run(ctx)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(startTime)

	// Summarize the run
	maxDev := 0.0
	for _, e := range agg.Entries() {
		if e.MaxRelativeDeviation > maxDev {
			maxDev = e.MaxRelativeDeviation
		}
	}
	fmt.Printf("\nRun %s completed in %.2f seconds\n", agg.RunID, elapsed.Seconds())
	fmt.Printf("Conditions committed: %d (%dx%d grid)\n", agg.Len(), agg.NumPhases(), agg.NumContrasts())
	fmt.Printf("Receptor complement: %s\n", agg.Variant)
	if len(cfg.Pipeline.MTFGains) > 0 {
		fmt.Println("MTF correction: enabled (consistency gate skipped)")
	} else {
		fmt.Printf("Max relative deviation from reference: %.3e\n", maxDev)
	}

	// Optional artifacts
	if *plots {
		fmt.Printf("Writing plots to: %s\n", cfg.Output.PlotsDir)
		if err := plotter.WritePlots(cfg.Output.PlotsDir); err != nil {
			log.Fatalf("Failed to write plots: %v", err)
		}
	}
	if *report {
		fmt.Printf("Writing report to: %s\n", cfg.Output.ReportPath)
		if err := plotter.WriteReport(cfg.Output.ReportPath); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
	}
	if cfg.Output.RunLogPath != "" {
		rl, err := runlog.Open(cfg.Output.RunLogPath)
		if err != nil {
			log.Fatalf("Failed to open run log: %v", err)
		}
		defer rl.Close()
		if err := rl.Record(agg); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		fmt.Printf("Run metrics recorded to: %s\n", cfg.Output.RunLogPath)
	}
}

// parseGains turns a comma-separated list into a gain profile.
func parseGains(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	gains := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("gain %q: %w", p, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("gain %g is negative", v)
		}
		gains = append(gains, v)
	}
	return gains, nil
}
