package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"sinusct/internal/logger"
	"sinusct/pkg/analysis"
	"sinusct/pkg/config"
	"sinusct/pkg/slicestack"
)

// BatchReport is written in -batch mode.
type BatchReport struct {
	RunID   string                 `json:"run_id" yaml:"run_id"`
	Results []analysis.BatchResult `json:"results" yaml:"results"`
	Summary analysis.Summary       `json:"summary" yaml:"summary"`
}

func main() {
	inputDir := flag.String("input", "", "Directory of numbered CT slice images (or of stack directories with -batch)")
	configPath := flag.String("config", "", "YAML configuration file")
	outputPath := flag.String("output", "", "Report file (default: stdout)")
	format := flag.String("format", "", "Report format: json or yaml")
	pixelSpacing := flag.Float64("pixel-spacing", 0, "In-plane pixel spacing in mm")
	sliceThickness := flag.Float64("slice-thickness", 0, "Slice thickness in mm")
	rescaleSlope := flag.Float64("rescale-slope", 0, "Stored value to HU slope")
	rescaleIntercept := flag.Float64("rescale-intercept", 0, "Stored value to HU intercept")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	batch := flag.Bool("batch", false, "Analyse every subdirectory of -input as one volume")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Default configuration written to %s\n", *writeConfig)
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// flags override the file only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Output.Format = *format
		case "pixel-spacing":
			cfg.Input.PixelSpacing = *pixelSpacing
		case "slice-thickness":
			cfg.Input.SliceThickness = *sliceThickness
		case "rescale-slope":
			cfg.Input.RescaleSlope = *rescaleSlope
		case "rescale-intercept":
			cfg.Input.RescaleIntercept = *rescaleIntercept
		case "log-level":
			cfg.Output.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	analyzer := analysis.NewAnalyzer(cfg.Analysis, nil)
	analyzer.SetLogger(log)

	startTime := time.Now()
	var report interface{}
	if *batch {
		report, err = runBatch(analyzer, cfg.Input, *inputDir, log)
	} else {
		report, err = runSingle(analyzer, cfg.Input, *inputDir)
	}
	if err != nil {
		log.Fatal().Err(err).Str("input", *inputDir).Msg("analysis failed")
	}

	if err := writeReport(report, cfg.Output.Format, *outputPath); err != nil {
		log.Fatal().Err(err).Msg("failed to write report")
	}
	log.Info().
		Dur("elapsed", time.Since(startTime)).
		Str("output", *outputPath).
		Msg("done")
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := logger.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		return zerolog.Logger{}, err
	}
	if cfg.Output.Verbose {
		return logger.NewConsole(level), nil
	}
	return logger.New(os.Stderr, level), nil
}

func runSingle(a *analysis.Analyzer, input slicestack.Params, dir string) (*analysis.Report, error) {
	input.Dir = dir
	v, _, err := slicestack.Load(input)
	if err != nil {
		return nil, err
	}
	return a.Analyze(v, filepath.Base(dir))
}

// runBatch loads each stack directory under root. A stack that fails to
// load is reported in place without stopping the others.
func runBatch(a *analysis.Analyzer, input slicestack.Params, root string, log zerolog.Logger) (*BatchReport, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch directory: %w", err)
	}

	var (
		results []analysis.BatchResult
		inputs  []analysis.Input
		slots   []int
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p := input
		p.Dir = filepath.Join(root, entry.Name())
		v, _, err := slicestack.Load(p)
		if err != nil {
			log.Warn().Err(err).Str("stack", entry.Name()).Msg("skipping unreadable stack")
			results = append(results, analysis.BatchResult{Label: entry.Name(), Err: err, Error: err.Error()})
			continue
		}
		slots = append(slots, len(results))
		results = append(results, analysis.BatchResult{Label: entry.Name()})
		inputs = append(inputs, analysis.Input{Label: entry.Name(), Volume: v})
	}

	for i, res := range a.AnalyzeBatch(inputs) {
		results[slots[i]] = res
	}
	return &BatchReport{
		RunID:   uuid.NewString(),
		Results: results,
		Summary: analysis.Summarize(results),
	}, nil
}

func writeReport(report interface{}, format, path string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case config.FormatYAML:
		data, err = yaml.Marshal(report)
	default:
		data, err = json.MarshalIndent(report, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return writeFile(path, data)
}

// writeFile writes data to path, reporting a failed Close when the write
// itself succeeded.
func writeFile(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
