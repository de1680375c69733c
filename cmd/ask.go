package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	apperrors "case-explainer/errors"
	"case-explainer/rag"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <case-id> <question...>",
		Short: "Answer one question about a case",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			caseID := args[0]
			question := strings.Join(args[1:], " ")

			ans, err := a.engine.Answer(cmd.Context(), caseID, question)
			if err != nil && !(apperrors.IsGenerationFailure(err) && ans != nil) {
				return err
			}
			if printErr := printAnswer(ans); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func printAnswer(ans *rag.GeneratedAnswer) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}
	fmt.Println(ans.Text)
	fmt.Println()
	fmt.Printf("confidence: %.2f  sources: %s  type: %s  degraded: %t  latency: %dms\n",
		ans.Confidence, strings.Join(ans.Sources, ","), ans.QueryType, ans.Degraded, ans.LatencyMs)
	return nil
}
