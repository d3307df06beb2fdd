package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	barcodescan "github.com/ericlevine/barcodescan"
)

func formatsCommand() *cobra.Command {
	var useQR bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the symbologies a scan recognizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range barcodescan.ComputeSymbologies(useQR).Slice() {
				fmt.Fprintf(tw, "%s\t%s\n", s, s.TypeIdentifier())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&useQR, "qr", false, "include the extended symbologies")
	return cmd
}
