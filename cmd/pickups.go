package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pickupsCmd = &cobra.Command{
	Use:   "pickups",
	Short: "Show how much milk to pick up per day and shift",
	RunE:  runPickups,
}

func init() {
	pickupsCmd.Flags().String("from", "", "first day (YYYY-MM-DD), default today")
	pickupsCmd.Flags().String("to", "", "last day (YYYY-MM-DD), default --from")
	pickupsCmd.Flags().String("agent", "", "delivery agent id")
	rootCmd.AddCommand(pickupsCmd)
}

func runPickups(cmd *cobra.Command, args []string) error {
	q, err := queryFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if q.AgentID == "" {
		q.AgentID = a.session.AgentID()
	}

	report, err := a.services().Pickups.Calendar(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, report)
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "DATE\tSHIFT\tCUSTOMERS\tDELIVERED\tLITERS")
	for _, b := range report.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", b.Date, b.Shift, b.Customers, b.Delivered, liters(b.Liters))
	}
	fmt.Fprintln(tw, "\t\t\t\t")
	fmt.Fprintln(tw, "PRODUCT\t\t\tAMOUNT\tLITERS")
	for _, p := range report.Products {
		fmt.Fprintf(tw, "%s\t\t\t%s\t%s\n", p.Product, p.Amount.StringFixed(2), liters(p.Liters))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t%s\n", report.Amount.StringFixed(2), liters(report.Liters))
	return tw.Flush()
}
