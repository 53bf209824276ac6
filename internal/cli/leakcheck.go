package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/stancewatch/internal/leakguard"
)

func init() {
	rootCmd.AddCommand(leakcheckCmd)
}

var leakcheckCmd = &cobra.Command{
	Use:   "leakcheck [text]",
	Short: "Check text for numeric figures",
	Long:  "Scans the text (or stdin when no argument is given) for currency amounts, percentages,\nlarge numbers, decimals, clock times and temperatures. Exits 1 if any are found.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLeakCheck,
}

type leakReport struct {
	Safe      bool              `json:"safe"`
	Matches   []leakguard.Match `json:"matches,omitempty"`
	Sanitized string            `json:"sanitized,omitempty"`
}

func runLeakCheck(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	report := checkLeaks(text)
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if !report.Safe {
		os.Exit(1)
	}
	return nil
}

func checkLeaks(text string) leakReport {
	v := leakguard.Validate(strings.TrimSpace(text))
	r := leakReport{Safe: v.Safe, Matches: v.Matches}
	if !v.Safe {
		r.Sanitized = leakguard.SanitizeReason(strings.TrimSpace(text))
	}
	return r
}
