package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var outputJSON bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// dateFlag reads a YYYY-MM-DD flag, nil when unset
func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil, nil
	}
	t, err := models.ParseDate(v)
	if err != nil {
		return nil, errors.Errorf("--%s must be a YYYY-MM-DD date, got %q", name, v)
	}
	return &t, nil
}

// dayFlag is dateFlag defaulting to today
func dayFlag(cmd *cobra.Command, name string) (string, error) {
	t, err := dateFlag(cmd, name)
	if err != nil {
		return "", err
	}
	if t == nil {
		return models.FormatDate(time.Now()), nil
	}
	return models.FormatDate(*t), nil
}

func shiftFlag(cmd *cobra.Command) (models.Shift, error) {
	v, _ := cmd.Flags().GetString("shift")
	shift, ok := models.ParseShift(v)
	if !ok {
		return "", errors.Errorf("--shift must be morning or evening, got %q", v)
	}
	return shift, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func liters(v float64) string {
	return fmt.Sprintf("%.2fL", v)
}
