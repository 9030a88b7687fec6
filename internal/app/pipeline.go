package app

import (
	"fmt"

	"gate-service/internal/camera"
	"gate-service/internal/config"
	"gate-service/internal/detector"
	"gate-service/internal/gate"
	"gate-service/internal/inference"
	"gate-service/internal/pipeline"
	"gate-service/internal/snapshot"
	"gate-service/internal/tracking"
)

// Pipeline builds the frame loop and the gate machine it drives.
func (a *App) Pipeline() (*pipeline.Pipeline, *gate.Machine, error) {
	cfg := a.Config

	source, err := NewSource(cfg.Camera)
	if err != nil {
		return nil, nil, err
	}

	client := inference.NewClient(cfg.Inference.URL, cfg.Inference.Timeout)
	consolidator := detector.NewConsolidator(client, consolidatorOptions(cfg.OCR), a.Metrics, a.Log)

	machine := gate.NewMachine(a.Approvals, a.Alerts, a.EventQueue, gate.Options{
		ResponseTimeout: cfg.Approval.ResponseTimeout,
		Cooldown:        cfg.Approval.Cooldown,
		PollInterval:    cfg.Approval.PollInterval,
	}, a.Metrics, a.Log)

	deps := pipeline.Deps{
		Source:       source,
		Detector:     client,
		Tracker:      tracking.New(tracking.Options{MaxAge: cfg.Tracker.MaxAge, MinHits: cfg.Tracker.MinHits, IoUThreshold: cfg.Tracker.IoUThreshold}),
		Consolidator: consolidator,
		Owners:       a.Matcher,
		Machine:      machine,
	}
	if cfg.Snapshots.Dir != "" {
		store, err := snapshot.NewDirStore(cfg.Snapshots.Dir, cfg.HTTP.PublicURL)
		if err != nil {
			_ = source.Close()
			return nil, nil, err
		}
		deps.Snapshots = store
	}
	a.onClose(func() { _ = source.Close() })

	p := pipeline.New(deps, pipeline.Options{
		ScoreThreshold: cfg.Pipeline.ScoreThreshold,
		IoUThreshold:   cfg.Pipeline.IoUThreshold,
	}, a.Metrics, a.Log.With().Str("camera", cfg.Camera.ID).Str("model", cfg.Camera.Model).Logger())
	return p, machine, nil
}

// NewSource opens the configured frame source.
func NewSource(cfg config.Camera) (camera.Source, error) {
	switch cfg.Source {
	case "dir":
		src, err := camera.NewDirSource(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "snapshot":
		if cfg.SnapshotURL == "" {
			return nil, fmt.Errorf("camera.snapshot_url is required for the snapshot source")
		}
		return camera.NewSnapshotSource(camera.SnapshotOptions{
			URL:      cfg.SnapshotURL,
			Username: cfg.Username,
			Password: cfg.Password,
			Interval: cfg.FrameInterval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}

func consolidatorOptions(cfg config.OCR) detector.Options {
	return detector.Options{
		Crop: detector.CropOptions{
			MaxDim:  cfg.MaxCropDim,
			Upscale: cfg.Upscale,
			Enhance: cfg.Enhance,
		},
		Line: detector.LineOptions{
			Tolerance:     cfg.LineTolerance,
			MinConfidence: cfg.MinConfidence,
		},
		Policy:         detector.Policy(cfg.Policy),
		RepeatEvery:    cfg.RepeatEvery,
		ConfidentVotes: cfg.ConfidentVotes,
		Workers:        cfg.Workers,
	}
}
