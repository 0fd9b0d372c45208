package cmd

import (
	"fmt"

	"example.com/backstage/dairy/internal/services"

	"github.com/spf13/cobra"
)

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "List the assignments to deliver",
	Long: `List current assignments between --from and --to. When signed in as an
agent the agent's own assignments are listed unless --agent is given.`,
	RunE: runDeliveries,
}

func init() {
	deliveriesCmd.Flags().String("from", "", "first day (YYYY-MM-DD), default today")
	deliveriesCmd.Flags().String("to", "", "last day (YYYY-MM-DD), default --from")
	deliveriesCmd.Flags().String("agent", "", "delivery agent id")
	rootCmd.AddCommand(deliveriesCmd)
}

func runDeliveries(cmd *cobra.Command, args []string) error {
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

	assignments, err := a.services().Assignments.Fetch(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, assignments)
	}
	if len(assignments) == 0 {
		fmt.Fprintln(out, "No deliveries")
		return nil
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tDATE\tSHIFT\tCUSTOMER\tPHONE\tLITERS\tDELIVERED")
	for _, as := range assignments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			as.ID, as.Date, as.Shift, as.CustomerName, as.CustomerPhone, liters(as.Liters), yesNo(as.Delivered))
	}
	return tw.Flush()
}

// queryFlags reads --from, --to and --agent. A lone --from also bounds
// the end of the range.
func queryFlags(cmd *cobra.Command) (services.AssignmentQuery, error) {
	from, err := dateFlag(cmd, "from")
	if err != nil {
		return services.AssignmentQuery{}, err
	}
	to, err := dateFlag(cmd, "to")
	if err != nil {
		return services.AssignmentQuery{}, err
	}
	if to == nil {
		to = from
	}
	agentID, _ := cmd.Flags().GetString("agent")
	return services.AssignmentQuery{From: from, To: to, AgentID: agentID}, nil
}
