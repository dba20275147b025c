// Package config provides configuration loading and management for stim2cone.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"stim2cone/pkg/scene"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Stimulus parameters for the synthesized gabor grid
	Stimulus struct {
		// Size is the patch width and height in pixels
		Size int `yaml:"size"`

		// Cycles is the number of carrier cycles across the patch
		Cycles float64 `yaml:"cycles"`

		// SigmaFraction sets the Gaussian envelope sigma as a fraction of
		// the patch size
		SigmaFraction float64 `yaml:"sigmaFraction"`

		// Background is the mean drive level in (0, 0.5]
		Background float64 `yaml:"background"`

		// PhasesDeg lists the carrier phase shifts of the grid in degrees
		PhasesDeg []float64 `yaml:"phasesDeg"`

		// Contrasts lists the contrast points of the grid, each in [0, 1]
		Contrasts []float64 `yaml:"contrasts"`
	} `yaml:"stimulus"`

	// Display parameters for the synthetic scene builder
	Display struct {
		// Name labels the display in scene names and logs
		Name string `yaml:"name"`

		// WavelengthStartNm is the first wavelength of the sampling in nm
		WavelengthStartNm float64 `yaml:"wavelengthStartNm"`

		// WavelengthStepNm is the sampling step in nm
		WavelengthStepNm float64 `yaml:"wavelengthStepNm"`

		// Bands is the number of wavelength samples
		Bands int `yaml:"bands"`

		// PeakPhotons is the full-drive photon output per pixel in
		// photons per second per nanometer, applied at every wavelength
		PeakPhotons float64 `yaml:"peakPhotons"`

		// PixelPitchMeters is the physical size of one pixel
		PixelPitchMeters float64 `yaml:"pixelPitchMeters"`

		// ViewingDistanceMeters is the distance from display to observer
		ViewingDistanceMeters float64 `yaml:"viewingDistanceMeters"`
	} `yaml:"display"`

	// Pipeline parameters
	Pipeline struct {
		// Workers caps how many conditions run at once
		Workers int `yaml:"workers"`

		// Tolerance is the excitation consistency threshold; zero selects
		// the built-in default
		Tolerance float64 `yaml:"tolerance"`

		// GeometryTolerance is the permitted relative geometry deviation;
		// zero selects the built-in default
		GeometryTolerance float64 `yaml:"geometryTolerance"`

		// MTFGains is the per-wavelength gain profile; empty disables
		// correction
		MTFGains []float64 `yaml:"mtfGains"`

		// ExtendedReceptors selects the extended receptor complement
		// (cones plus rod) instead of cones only
		ExtendedReceptors bool `yaml:"extendedReceptors"`

		// NominalWidthMeters is the declared stimulus width scenes are
		// checked against; zero derives it from the display geometry
		NominalWidthMeters float64 `yaml:"nominalWidthMeters"`

		// NominalFOVDegrees is the declared field of view scenes are
		// checked against; zero derives it from the display geometry
		NominalFOVDegrees float64 `yaml:"nominalFOVDegrees"`
	} `yaml:"pipeline"`

	// Output parameters
	Output struct {
		// PlotsDir is where per-condition PNG plots are written
		PlotsDir string `yaml:"plotsDir"`

		// ReportPath is where the HTML run report is written
		ReportPath string `yaml:"reportPath"`

		// RunLogPath is the sqlite file run metrics are recorded to;
		// empty disables run logging
		RunLogPath string `yaml:"runLogPath"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default stimulus parameters from the standard gabor grid
	gp := scene.DefaultGaborParams()
	cfg.Stimulus.Size = gp.Size
	cfg.Stimulus.Cycles = gp.Cycles
	cfg.Stimulus.SigmaFraction = gp.SigmaFraction
	cfg.Stimulus.Background = gp.Background
	cfg.Stimulus.PhasesDeg = gp.PhasesDeg
	cfg.Stimulus.Contrasts = gp.Contrasts

	// Set default display parameters: 400-700 nm in 10 nm steps on a
	// small desktop panel at reading distance
	cfg.Display.Name = "default-panel"
	cfg.Display.WavelengthStartNm = 400
	cfg.Display.WavelengthStepNm = 10
	cfg.Display.Bands = 31
	cfg.Display.PeakPhotons = 1e15
	cfg.Display.PixelPitchMeters = 0.25e-3
	cfg.Display.ViewingDistanceMeters = 0.57

	// Set default pipeline parameters
	cfg.Pipeline.Workers = runtime.NumCPU()

	// Set default output parameters
	cfg.Output.PlotsDir = "plots"
	cfg.Output.ReportPath = "report.html"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// GaborParams maps the stimulus section onto the scene synthesis parameters.
func (c *Config) GaborParams() scene.GaborParams {
	return scene.GaborParams{
		Size:          c.Stimulus.Size,
		Cycles:        c.Stimulus.Cycles,
		SigmaFraction: c.Stimulus.SigmaFraction,
		Background:    c.Stimulus.Background,
		PhasesDeg:     c.Stimulus.PhasesDeg,
		Contrasts:     c.Stimulus.Contrasts,
	}
}

// BuildDisplay materializes the display section into a display model with
// a uniform wavelength sampling and a flat full-drive spectrum.
func (c *Config) BuildDisplay() (*scene.Display, error) {
	if c.Display.Bands <= 0 {
		return nil, fmt.Errorf("config: display bands must be positive, got %d", c.Display.Bands)
	}
	if c.Display.WavelengthStepNm <= 0 {
		return nil, fmt.Errorf("config: display wavelength step must be positive, got %g",
			c.Display.WavelengthStepNm)
	}

	wls := make([]float64, c.Display.Bands)
	spd := make([]float64, c.Display.Bands)
	for i := range wls {
		wls[i] = c.Display.WavelengthStartNm + float64(i)*c.Display.WavelengthStepNm
		spd[i] = c.Display.PeakPhotons
	}

	d := &scene.Display{
		Name:                  c.Display.Name,
		Wavelengths:           wls,
		SPD:                   spd,
		PixelPitchMeters:      c.Display.PixelPitchMeters,
		ViewingDistanceMeters: c.Display.ViewingDistanceMeters,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// NominalGeometry returns the declared stimulus width and field of view.
// Axes left at zero in the configuration are derived from the display
// geometry, which makes the geometry check exact for synthetic scenes.
func (c *Config) NominalGeometry(d *scene.Display) (widthMeters, fovDegrees float64) {
	widthMeters = c.Pipeline.NominalWidthMeters
	fovDegrees = c.Pipeline.NominalFOVDegrees
	if widthMeters <= 0 {
		widthMeters = float64(c.Stimulus.Size) * d.PixelPitchMeters
	}
	if fovDegrees <= 0 {
		fovDegrees = 2 * math.Atan2(widthMeters/2, d.ViewingDistanceMeters) * 180 / math.Pi
	}
	return widthMeters, fovDegrees
}
