package main

import (
	"fmt"

	"github.com/ericlevine/barcodescan/config"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/device/replay"
	"github.com/ericlevine/barcodescan/device/webcam"
	"github.com/ericlevine/barcodescan/focus"
	"github.com/ericlevine/barcodescan/metadata"
	"github.com/ericlevine/barcodescan/scan"
	"github.com/ericlevine/barcodescan/view"
)

// openCamera returns the camera described by cfg. Image paths given on the
// command line take precedence over the configured device.
func openCamera(cfg *config.Config, paths []string) (device.Camera, error) {
	replayOpts := []replay.Option{
		replay.WithInterval(cfg.Device.FrameInterval),
		replay.WithLoop(cfg.Device.Loop),
	}
	if len(paths) > 0 {
		return replay.Load(paths, replayOpts...)
	}

	switch cfg.Device.Kind {
	case config.DeviceReplay:
		if len(cfg.Device.Paths) == 0 {
			return nil, fmt.Errorf("device.kind is replay but no image paths are configured")
		}
		return replay.Load(cfg.Device.Paths, replayOpts...)
	case config.DeviceWebcam:
		return webcam.New(webcam.Config{Index: cfg.Device.Index}), nil
	default:
		return device.Unavailable{}, nil
	}
}

// scannerOptions maps the preview and scan sections onto scanner options.
func scannerOptions(cfg *config.Config) []scan.Option {
	return []scan.Option{
		scan.WithPreview(
			view.Size{Width: cfg.Preview.Width, Height: cfg.Preview.Height},
			focus.ParseGravity(cfg.Preview.Gravity),
			focus.Rotation(cfg.Preview.Rotation),
		),
		scan.WithLocale(cfg.Locale()),
		scan.WithOutputOptions(metadata.WithTryHarder(cfg.Scan.TryHarder)),
	}
}
