package cmd

import (
	"fmt"

	"example.com/backstage/dairy/internal/services"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Start, log calls on and complete delivery trips",
}

var tripStartCmd = &cobra.Command{
	Use:   "start ASSIGNMENT_ID",
	Short: "Start a trip for an assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dayFlag(cmd, "date")
		if err != nil {
			return err
		}
		shift, err := shiftFlag(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		trip, err := a.services().Trips.StartTrip(cmd.Context(), args[0], date, shift)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), trip)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Trip %s started for %s %s\n", trip.ID, trip.Date, trip.Shift)
		return nil
	},
}

var tripCallCmd = &cobra.Command{
	Use:   "call TRIP_ID",
	Short: "Log a call to the customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.services().Trips.RecordCall(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Call logged on trip %s\n", args[0])
		return nil
	},
}

var tripCompleteCmd = &cobra.Command{
	Use:   "complete TRIP_ID",
	Short: "Complete a trip as delivered or failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := completionFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.services().Trips.CompleteTrip(cmd.Context(), args[0], c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Trip %s completed: %s\n", args[0], c.Status())
		return nil
	},
}

func init() {
	tripStartCmd.Flags().String("date", "", "delivery day (YYYY-MM-DD), default today")
	tripStartCmd.Flags().String("shift", "morning", "morning or evening")

	tripCompleteCmd.Flags().Bool("delivered", true, "whether the milk was delivered")
	tripCompleteCmd.Flags().Float64("liters", 0, "liters handed over")
	tripCompleteCmd.Flags().String("rate", "0", "price per liter")
	tripCompleteCmd.Flags().String("product", "", "product delivered")
	tripCompleteCmd.Flags().String("reason", "", "why it was not delivered: not_available, refused, skipped or free text")

	tripCmd.AddCommand(tripStartCmd, tripCallCmd, tripCompleteCmd)
	rootCmd.AddCommand(tripCmd)
}

func completionFlags(cmd *cobra.Command) (services.Completion, error) {
	delivered, _ := cmd.Flags().GetBool("delivered")
	litersFlag, _ := cmd.Flags().GetFloat64("liters")
	rateFlag, _ := cmd.Flags().GetString("rate")
	product, _ := cmd.Flags().GetString("product")
	reason, _ := cmd.Flags().GetString("reason")

	rate, err := decimal.NewFromString(rateFlag)
	if err != nil {
		return services.Completion{}, errors.Errorf("--rate must be a number, got %q", rateFlag)
	}
	return services.Completion{
		Delivered:     delivered,
		Liters:        litersFlag,
		Rate:          rate,
		Product:       product,
		FailureReason: reason,
	}, nil
}
