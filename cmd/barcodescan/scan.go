package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/config"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/scan"
	"github.com/ericlevine/barcodescan/sink"
)

var errNoBarcode = errors.New("no barcodes found")

func scanCommand() *cobra.Command {
	var (
		useQR     bool
		tryHarder bool
		each      bool
		loop      bool
		interval  time.Duration
		timeout   time.Duration
		natsURL   string
	)

	cmd := &cobra.Command{
		Use:   "scan [image-file|dir...]",
		Short: "Scan until the first barcode is found",
		Long: `Stream frames from the configured device, or from the given images in
order, and print the first barcode decoded. With --each every image is scanned
in its own attempt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("qr") {
				cfg.Scan.UseQR = useQR
			}
			if cmd.Flags().Changed("try-harder") {
				cfg.Scan.TryHarder = tryHarder
			}
			if cmd.Flags().Changed("loop") {
				cfg.Device.Loop = loop
			}
			if cmd.Flags().Changed("interval") {
				cfg.Device.FrameInterval = interval
			}
			if natsURL != "" {
				cfg.NATS.URL = natsURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var extra barcodescan.ResultSink
			if cfg.NATS.URL != "" {
				conn, err := sink.Connect(cfg.NATS.URL, cfg.NATS.Timeout)
				if err != nil {
					return err
				}
				defer conn.Drain()
				extra = sink.NewNATS(conn, cfg.NATS.Subject)
			}

			if !each || len(args) < 2 {
				cam, err := openCamera(cfg, args)
				if err != nil {
					return err
				}
				result, err := scanOnce(ctx, cfg, cam, extra)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result)
				return nil
			}

			failed := false
			for _, path := range args {
				cam, err := openCamera(cfg, []string{path})
				if err == nil {
					var result barcodescan.Result
					result, err = scanOnce(ctx, cfg, cam, extra)
					if err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, result)
						continue
					}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
				failed = true
				if ctx.Err() != nil {
					break
				}
			}
			if failed {
				return errNoBarcode
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useQR, "qr", false, "also recognize QR codes")
	cmd.Flags().BoolVar(&tryHarder, "try-harder", false, "spend more time looking for barcodes in each frame")
	cmd.Flags().BoolVar(&each, "each", false, "scan every image in its own attempt")
	cmd.Flags().BoolVar(&loop, "loop", false, "replay images until a barcode is found")
	cmd.Flags().DurationVar(&interval, "interval", 0, "delay between replayed frames")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	cmd.Flags().StringVar(&natsURL, "nats", "", "also publish the result to this NATS server")
	return cmd
}

// scanOnce runs a single attempt against cam and returns its result.
func scanOnce(ctx context.Context, cfg *config.Config, cam device.Camera, extra barcodescan.ResultSink) (barcodescan.Result, error) {
	scanCfg, err := cfg.ScanConfiguration()
	if err != nil {
		return barcodescan.Result{}, err
	}

	results := sink.NewChan()
	var out barcodescan.ResultSink = results
	if extra != nil {
		out = sink.Multi{results, extra}
	}

	s := scan.New(cam, out, scannerOptions(cfg)...)
	defer s.Close()

	if err := s.Configure(scanCfg); err != nil {
		return barcodescan.Result{}, err
	}
	if err := s.Start(ctx); err != nil {
		return barcodescan.Result{}, err
	}

	result, err := s.Wait(ctx)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, io.EOF):
		return barcodescan.Result{}, errNoBarcode
	case ctx.Err() != nil:
		return barcodescan.Result{}, fmt.Errorf("scan aborted: %w", ctx.Err())
	default:
		return barcodescan.Result{}, err
	}
}
