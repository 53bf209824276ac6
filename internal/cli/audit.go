package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/stancewatch/internal/audit"
)

var (
	showAuditID  string
	showUser     string
	showCategory string
	showFrom     string
	showTo       string
	showFormat   string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditShowCmd.Flags().StringVar(&showAuditID, "audit-id", "", "Only entries with this audit id")
	auditShowCmd.Flags().StringVar(&showUser, "user", "", "Only entries for this user id")
	auditShowCmd.Flags().StringVar(&showCategory, "category", "", "Only entries in this category (e.g. veto.hard, leakguard)")
	auditShowCmd.Flags().StringVar(&showFrom, "from", "", "Start time filter (RFC3339)")
	auditShowCmd.Flags().StringVar(&showTo, "to", "", "End time filter (RFC3339)")
	auditShowCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Render audit entries as a timeline",
	Long:  "Reads the audit log, applies the filters, and renders a decision timeline with summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	filter := audit.ReplayFilter{
		AuditID:  showAuditID,
		UserID:   showUser,
		Category: showCategory,
	}

	if showFrom != "" {
		from, err := time.Parse(time.RFC3339, showFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", showFrom, err)
		}
		filter.From = from
	}
	if showTo != "" {
		to, err := time.Parse(time.RFC3339, showTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", showTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(args[0], filter)
	if err != nil {
		return err
	}

	switch showFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(result))
	}
	return nil
}
