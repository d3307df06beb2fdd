package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/internal/barcodeimage"
)

func renderCommand() *cobra.Command {
	var (
		symbology string
		width     int
		height    int
		output    string
	)

	cmd := &cobra.Command{
		Use:   "render <contents>",
		Short: "Render a barcode to a PNG, for use as a replay frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sym, err := barcodescan.ParseSymbology(symbology)
			if err != nil {
				return err
			}
			img, err := barcodeimage.Render(sym, args[0], width, height)
			if err != nil {
				return fmt.Errorf("render %s: %w", sym, err)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := png.Encode(f, barcodeimage.Stack(20, img)); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&symbology, "symbology", "s", "EAN13", "symbology to render")
	cmd.Flags().IntVar(&width, "width", 300, "barcode width in pixels")
	cmd.Flags().IntVar(&height, "height", 100, "barcode height in pixels")
	cmd.Flags().StringVarP(&output, "output", "o", "barcode.png", "output file")
	return cmd
}
