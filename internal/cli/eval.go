package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/stancewatch/internal/client"
	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/pipeline"
)

var (
	evalRemote     string
	evalUser       string
	evalIntent     string
	evalDomain     string
	evalComplexity string
	evalAckToken   string
	evalAckText    string
	evalDraft      string
	evalNoPrompt   bool
)

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalRemote, "remote", "", "Evaluate against a decision server at this address instead of in-process")
	evalCmd.Flags().StringVar(&evalUser, "user", "cli", "User id")
	evalCmd.Flags().StringVar(&evalIntent, "intent", "", "Intent type (question|action|planning|rewrite|summarize|translate)")
	evalCmd.Flags().StringVar(&evalDomain, "domain", "", "Intent domain")
	evalCmd.Flags().StringVar(&evalComplexity, "complexity", "", "Intent complexity (low|medium|high)")
	evalCmd.Flags().StringVar(&evalAckToken, "ack-token", "", "Ack token from a previous await_ack decision")
	evalCmd.Flags().StringVar(&evalAckText, "ack-text", "", "Acknowledgment text")
	evalCmd.Flags().StringVar(&evalDraft, "draft", "", "Draft response to run through the leak guard (local only)")
	evalCmd.Flags().BoolVar(&evalNoPrompt, "no-prompt", false, "Never prompt for acknowledgment")
}

var evalCmd = &cobra.Command{
	Use:   "eval <message>",
	Short: "Run one message through the decision pipeline",
	Long:  "Evaluates a message and prints the decision as JSON.\nOn await_ack at an interactive terminal, prompts for the acknowledgment text and resubmits.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

// evaluator is satisfied by both the in-process stack and the gRPC client.
type evaluator interface {
	Evaluate(ctx context.Context, req model.RequestContext) model.DecisionResult
}

type localEvaluator struct {
	stack *pipeline.Stack
}

func (l localEvaluator) Evaluate(ctx context.Context, req model.RequestContext) model.DecisionResult {
	return l.stack.Process(ctx, req)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var ev evaluator
	if evalRemote != "" {
		c, err := client.New(evalRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		ev = c
	} else {
		cfg, hash, logger, err := loadConfig()
		if err != nil {
			return err
		}
		opts := pipeline.BuildOptions{Logger: logger}
		if evalDraft != "" {
			opts.Generator = draftGenerator(evalDraft)
		}
		stack, err := pipeline.Build(ctx, cfg, hash, opts)
		if err != nil {
			return err
		}
		defer stack.Close()
		ev = localEvaluator{stack: stack}
	}

	req := model.RequestContext{
		UserID:   evalUser,
		Message:  args[0],
		AckToken: evalAckToken,
		AckText:  evalAckText,
	}
	if evalIntent != "" || evalDomain != "" || evalComplexity != "" {
		req.Intent = &model.Intent{Type: evalIntent, Domain: evalDomain, Complexity: evalComplexity}
	}

	interactive := !evalNoPrompt && term.IsTerminal(int(os.Stdin.Fd()))
	res := evaluateWithAck(ctx, ev, req, os.Stdin, os.Stderr, interactive)

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}

// evaluateWithAck evaluates req and, when the decision awaits acknowledgment
// and prompting is allowed, reads the acknowledgment from in and resubmits
// once with the issued token.
func evaluateWithAck(ctx context.Context, ev evaluator, req model.RequestContext, in io.Reader, prompt io.Writer, interactive bool) model.DecisionResult {
	res := ev.Evaluate(ctx, req)
	if res.Action != model.ActionAwaitAck || res.Veto.Pending == nil || !interactive {
		return res
	}

	p := res.Veto.Pending
	fmt.Fprintln(prompt, "This request needs explicit acknowledgment. To proceed, type exactly:")
	fmt.Fprintf(prompt, "  %s\n> ", p.RequiredText)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return res
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return res
	}

	req.AckToken = p.Token
	req.AckText = line
	return ev.Evaluate(ctx, req)
}

func draftGenerator(draft string) pipeline.Generator {
	return pipeline.GeneratorFunc(func(ctx context.Context, req pipeline.GenerationRequest) (string, error) {
		return draft, nil
	})
}
