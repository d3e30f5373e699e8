package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/braingenix/brainstream"
	"github.com/braingenix/brainstream/rt/subregion"
)

func main() {
	var (
		configPath = flag.String("config", "", "config YAML (optional, defaults apply)")
		scenePath  = flag.String("scene", "", "scene YAML with shapes, microscope and regions")
		modality   = flag.String("modality", "em", "em or calcium")
		outDir     = flag.String("out", "", "output directory (overrides config)")
		convert    = flag.Bool("neuroglancer", false, "convert each rendered region to a neuroglancer dataset")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "missing -scene")
		os.Exit(2)
	}
	m, ok := map[string]subregion.Modality{"em": subregion.EM, "calcium": subregion.Calcium}[strings.ToLower(*modality)]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -modality", *modality)
		os.Exit(2)
	}

	cfg := brainstream.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = brainstream.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	logger := brainstream.NewDefaultLogger(cfg.Logging.Prefix, cfg.Logging.Debug || *debug)

	scene, err := brainstream.LoadScene(*scenePath)
	if err != nil {
		logger.Errorf("load scene: %v", err)
		os.Exit(1)
	}

	sim, err := brainstream.NewSimulation(cfg, nil, logger)
	if err != nil {
		logger.Errorf("start simulation: %v", err)
		os.Exit(1)
	}
	defer sim.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sim.Initialize(m); err != nil {
		logger.Errorf("initialize: %v", err)
		os.Exit(1)
	}
	if err := sim.SetupMicroscope(m, scene.Microscope.Params()); err != nil {
		logger.Errorf("setup microscope: %v", err)
		os.Exit(1)
	}
	regions := scene.Apply(sim)
	if len(regions) == 0 {
		logger.Warnf("scene defines no scan regions")
		return
	}

	failed := false
	for _, id := range regions {
		if err := render(ctx, sim, m, id, logger); err != nil {
			logger.Errorf("region %d: %v", id, err)
			failed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}
		stack, err := sim.GetImageStack(id)
		if err != nil {
			logger.Errorf("region %d image stack: %v", id, err)
			failed = true
			continue
		}
		logger.Infof("region %d: %d images", id, len(stack))

		if *convert {
			ds, err := sim.ConvertToNeuroglancer(m, id)
			if err != nil {
				logger.Errorf("region %d neuroglancer: %v", id, err)
				failed = true
				continue
			}
			fmt.Println(ds)
		}
	}
	if failed {
		sim.Close()
		os.Exit(1)
	}
}

func render(ctx context.Context, sim *brainstream.Simulation, m subregion.Modality, id int, logger brainstream.Logger) error {
	if err := sim.QueueRenderOperation(m, id); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- sim.Wait(ctx, m) }()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			st := sim.GetRenderStatus(m)
			logger.Infof("%s: subregion %d/%d, slice %d/%d, image %d/%d", st.State,
				st.CurrentRegion, st.TotalRegions, st.CurrentSlice, st.TotalSlices, st.CurrentImage, st.TotalImages)
		}
	}
}
