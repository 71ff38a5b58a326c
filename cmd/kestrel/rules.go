package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the fuzzy rule base and variable partitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"rules":     fuzzy.Rules(),
				"variables": fuzzy.Variables(),
			})
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tGPA\tCCA\tATTENDANCE\tMIDTERM\tFINAL\tCATEGORY")
		for i, r := range fuzzy.Rules() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", i+1,
				r.Label(fuzzy.GPA), r.Label(fuzzy.CCA), r.Label(fuzzy.Attendance),
				r.Label(fuzzy.Midterm), r.Label(fuzzy.FinalExam), r.Then)
		}
		fmt.Fprintln(tw)

		fmt.Fprintln(tw, "VARIABLE\tRANGE\tLOW\tMEDIUM\tHIGH")
		for _, v := range fuzzy.Variables() {
			fmt.Fprintf(tw, "%s\t[%g, %g]\t<%g..%g\t%g..%g..%g..%g\t%g..%g>\n",
				v.Measurement, v.Min, v.Max,
				v.Low.Full, v.Low.Zero,
				v.Medium.A, v.Medium.B, v.Medium.C, v.Medium.D,
				v.High.Zero, v.High.Full)
		}
		return tw.Flush()
	},
}

func init() {
	rulesCmd.Flags().Bool("json", false, "Print as JSON")
}
