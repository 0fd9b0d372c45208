package cmd

import (
	"fmt"

	"example.com/backstage/dairy/internal/services"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Manage delivery status without a trip",
}

var statusSetCmd = &cobra.Command{
	Use:   "set ASSIGNMENT_ID",
	Short: "Mark a delivery as delivered or not",
	Long: `Mark the delivery of an assignment for one day and shift. Repeating the
command with the same values is harmless.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dayFlag(cmd, "date")
		if err != nil {
			return err
		}
		shift, err := shiftFlag(cmd)
		if err != nil {
			return err
		}
		delivered, _ := cmd.Flags().GetBool("delivered")
		qty, _ := cmd.Flags().GetFloat64("liters")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		change := services.StatusChange{
			AssignmentID: args[0],
			Date:         date,
			Shift:        shift,
			Delivered:    delivered,
			Liters:       qty,
		}
		if err := a.services().Trips.SetDeliveryStatus(cmd.Context(), change); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s: delivered=%s\n", args[0], date, shift, yesNo(delivered))
		return nil
	},
}

func init() {
	statusSetCmd.Flags().String("date", "", "delivery day (YYYY-MM-DD), default today")
	statusSetCmd.Flags().String("shift", "morning", "morning or evening")
	statusSetCmd.Flags().Bool("delivered", true, "delivered or not")
	statusSetCmd.Flags().Float64("liters", 0, "liters handed over")

	statusCmd.AddCommand(statusSetCmd)
	rootCmd.AddCommand(statusCmd)
}
