package cmd

import (
	"context"
	"fmt"
	"os"

	"example.com/backstage/dairy/internal/session"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as an agent, seller or customer",
}

var loginAgentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Sign in as a delivery agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		loginID, _ := cmd.Flags().GetString("login-id")
		phone, _ := cmd.Flags().GetString("phone")
		return login(cmd, func(ctx context.Context, s *session.Session) (*session.Identity, error) {
			return s.LoginAgent(ctx, loginID, phone)
		})
	},
}

var loginSellerCmd = &cobra.Command{
	Use:   "seller",
	Short: "Sign in as a seller with email and password",
	Long: `Sign in as a seller. The password is read from --password or the
DAIRY_PASSWORD environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("DAIRY_PASSWORD")
		}
		if password == "" {
			return errors.New("a password is required")
		}
		return login(cmd, func(ctx context.Context, s *session.Session) (*session.Identity, error) {
			return s.SignInSeller(ctx, email, password)
		})
	},
}

var loginCustomerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Sign in as a customer by name and phone",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")
		return login(cmd, func(ctx context.Context, s *session.Session) (*session.Identity, error) {
			return s.LoginCustomer(ctx, name, phone)
		})
	},
}

func init() {
	loginAgentCmd.Flags().String("login-id", "", "agent login id")
	loginAgentCmd.Flags().String("phone", "", "agent phone number")
	_ = loginAgentCmd.MarkFlagRequired("login-id")
	_ = loginAgentCmd.MarkFlagRequired("phone")

	loginSellerCmd.Flags().String("email", "", "seller email")
	loginSellerCmd.Flags().String("password", "", "seller password")
	_ = loginSellerCmd.MarkFlagRequired("email")

	loginCustomerCmd.Flags().String("name", "", "customer name")
	loginCustomerCmd.Flags().String("phone", "", "customer phone number")
	_ = loginCustomerCmd.MarkFlagRequired("name")
	_ = loginCustomerCmd.MarkFlagRequired("phone")

	loginCmd.AddCommand(loginAgentCmd, loginSellerCmd, loginCustomerCmd)
	rootCmd.AddCommand(loginCmd)
}

func login(cmd *cobra.Command, signIn func(context.Context, *session.Session) (*session.Identity, error)) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := signIn(ctx, a.session)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, identity)
	}
	switch identity.Role {
	case session.RoleAgent:
		fmt.Fprintf(out, "Signed in as agent %s (%s)\n", identity.Name, identity.AgentID)
	case session.RoleCustomer:
		fmt.Fprintf(out, "Signed in as customer %s (%s)\n", identity.Name, identity.CustomerID)
	default:
		fmt.Fprintf(out, "Signed in as %s, session valid until %s\n", identity.Email, identity.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
