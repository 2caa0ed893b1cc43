package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/config"
	"growcutseg/pkg/logging"
	"growcutseg/pkg/segmentation"
	"growcutseg/pkg/seed"
	"growcutseg/pkg/stl"
	"growcutseg/pkg/visualization"
	"growcutseg/pkg/volio"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "growcutseg.yaml", "Configuration file (.yaml or .toml)")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	inputPath := flag.String("input", "", "Reference volume in GCV1 format, or a directory of JPG/PNG slices")
	pixelSize := flag.Float64("pixel-size", 1.0, "In-plane pixel size in mm when -input is a slice directory")
	sliceGap := flag.Float64("gap", 1.0, "Inter-slice gap in mm when -input is a slice directory")
	outputPath := flag.String("output", "labels.gcv", "Output label volume in GCV1 format")
	strategyName := flag.String("strategy", "oneclick", "Seed strategy: sphere, box or oneclick")
	center := flag.String("center", "", "Sphere centre in world coordinates, x,y,z")
	radius := flag.Float64("radius", 10, "Sphere radius in world units")
	normal := flag.String("normal", "0,0,1", "View plane normal, x,y,z")
	viewUp := flag.String("view-up", "0,-1,0", "View up direction, x,y,z")
	topLeft := flag.String("top-left", "", "Bounding box corner in world coordinates, x,y,z")
	bottomRight := flag.String("bottom-right", "", "Opposite bounding box corner, x,y,z")
	click := flag.String("click", "", "Clicked point in world coordinates, x,y,z")
	previewDir := flag.String("preview-dir", "", "Directory to save PNG overlays of every slice (overrides config)")
	meshFile := flag.String("mesh", "", "STL file for the segment surface (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU workers (default: from config)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Log.SetLogger()
	defer logging.Shutdown()

	if *numCores > 0 {
		cfg.Engine.Workers = *numCores
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}
	if *meshFile != "" {
		cfg.Output.MeshFile = *meshFile
	}

	strategy, err := buildStrategy(cfg, *strategyName, strategyArgs{
		center:      *center,
		radius:      *radius,
		normal:      *normal,
		viewUp:      *viewUp,
		topLeft:     *topLeft,
		bottomRight: *bottomRight,
		click:       *click,
	})
	if err != nil {
		log.Fatalf("Invalid %s arguments: %v", *strategyName, err)
	}

	reference, err := loadReference(*inputPath, *pixelSize, *sliceGap)
	if err != nil {
		log.Fatalf("Failed to load reference volume: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("GROW-CUT VOLUMETRIC SEGMENTATION")
	fmt.Println("================================")
	fmt.Printf("Reference: %s (%s)\n", *inputPath, reference.Dims)

	segmenter := segmentation.NewSegmenter(&segmentation.Params{
		Strategy:     strategy,
		Run:          cfg.RunParameters(),
		SegmentIndex: cfg.Output.SegmentIndex,
		KeepNegative: cfg.Output.KeepNegative,
	})

	startTime := time.Now()
	result, err := segmenter.Process(reference)
	if err != nil {
		log.Fatalf("Segmentation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	if err := volio.SaveLabels(*outputPath, result.Labels, cfg.Output.Compress); err != nil {
		log.Fatalf("Failed to save labels: %v", err)
	}

	metrics := segmenter.GetMetrics()
	fmt.Printf("\nSegmentation completed in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Labels saved to: %s\n\n", *outputPath)

	fmt.Printf("Metrics (run %s):\n", metrics.RunID)
	fmt.Printf("=======================================\n")
	fmt.Printf("Working region: %s\n", result.Seeding.Bounds)
	fmt.Printf("Seeds: %d positive, %d negative\n", metrics.Seeds.PositiveSeeds, metrics.Seeds.NegativeSeeds)
	fmt.Printf("Segment voxels: %d (%.3f%% of volume)\n", metrics.PositiveVoxels, metrics.PositiveFraction*100)
	fmt.Printf("Segment volume: %.2f\n", metrics.PositiveVolume)
	fmt.Printf("Segment intensity: %.2f ± %.2f\n", metrics.MeanIntensity, metrics.StdIntensity)
	fmt.Printf("Background voxels: %d, unlabeled: %d\n", metrics.NegativeVoxels, metrics.UnlabeledVoxels)
	fmt.Printf("Iterations: %d (converged: %v)\n", metrics.Iterations, metrics.Converged)
	if metrics.TimedOut {
		fmt.Printf("Warning: processing time budget exceeded, result may be under-converged\n")
	}

	// Save overlays of the segmentation if requested
	if cfg.Output.PreviewDir != "" {
		fmt.Println("\nSaving slice previews...")
		viewer, err := visualization.NewViewer(reference, result.Labels)
		if err != nil {
			log.Fatalf("Failed to create viewer: %v", err)
		}
		if cfg.Output.SegmentIndex != 0 {
			viewer.SetColor(cfg.Output.SegmentIndex, visualization.PositiveColor)
		}
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.PreviewDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logging.Warningf("Failed to save %s-axis slices: %v", axis, err)
			}
		}
	}

	// Save the segment surface if requested
	if cfg.Output.MeshFile != "" {
		value := cfg.Output.SegmentIndex
		if value == 0 {
			value = result.Seeding.Seeds.Positive
		}
		triangles := stl.FromLabels(result.Labels, value, reference.Geometry.Spacing)
		if err := stl.SaveToSTL(cfg.Output.MeshFile, triangles); err != nil {
			log.Fatalf("Failed to save mesh: %v", err)
		}
		fmt.Printf("\nSegment surface (%d triangles) saved to: %s\n", len(triangles), cfg.Output.MeshFile)
	}
}

// loadReference reads a GCV1 file or stacks the images of a directory
func loadReference(path string, pixelSize, gap float64) (*models.Grid, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return volio.LoadSliceStack(path, r3.Vec{X: pixelSize, Y: pixelSize, Z: gap})
	}
	return volio.LoadGrid(path)
}

type strategyArgs struct {
	center, normal, viewUp string
	radius                 float64
	topLeft, bottomRight   string
	click                  string
}

func buildStrategy(cfg *config.Config, name string, args strategyArgs) (seed.Strategy, error) {
	switch name {
	case "sphere":
		c, err := parseVec(args.center)
		if err != nil {
			return nil, fmt.Errorf("-center: %w", err)
		}
		n, err := parseVec(args.normal)
		if err != nil {
			return nil, fmt.Errorf("-normal: %w", err)
		}
		up, err := parseVec(args.viewUp)
		if err != nil {
			return nil, fmt.Errorf("-view-up: %w", err)
		}
		return seed.Sphere{
			Center:  c,
			Radius:  args.radius,
			Camera:  seed.Camera{ViewPlaneNormal: n, ViewUp: up},
			Options: cfg.SphereOptions(),
		}, nil

	case "box":
		tl, err := parseVec(args.topLeft)
		if err != nil {
			return nil, fmt.Errorf("-top-left: %w", err)
		}
		br, err := parseVec(args.bottomRight)
		if err != nil {
			return nil, fmt.Errorf("-bottom-right: %w", err)
		}
		return seed.BoundingBox{TopLeft: tl, BottomRight: br, Options: cfg.BoxOptions()}, nil

	case "oneclick":
		p, err := parseVec(args.click)
		if err != nil {
			return nil, fmt.Errorf("-click: %w", err)
		}
		return seed.OneClick{Click: p, Options: cfg.OneClickOptions()}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q (must be sphere, box or oneclick)", name)
}

// parseVec parses "x,y,z"
func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("coordinate %d of %q: %w", i, s, err)
		}
		v[i] = f
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}
