package cmd

import (
	"fmt"
	"net/http"
	"net/url"

	"case-explainer/utils"
	webtypes "case-explainer/web/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newForgetCmd() *cobra.Command {
	var skipServer bool

	cmd := &cobra.Command{
		Use:   "forget <case-id>",
		Short: "Delete the history, graph edges and extracted documents of a case",
		Long: `Forget removes everything derived from a case outside the relational
record: stored conversation turns, outgoing graph edges and the extracted
document fields. A running server is then asked to drop its cached
answers and context for the case.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID := args[0]
			if err := utils.ValidateCaseID(caseID); err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			turns, err := a.store.DeleteConversation(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			edges, err := a.graph.DeleteEdgesByCase(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			if err := a.docs.Delete(cmd.Context(), caseID); err != nil {
				return err
			}

			answers := 0
			if !skipServer {
				var resp webtypes.InvalidateResponse
				endpoint := baseURL(a.cfg) + "/api/cases/" + url.PathEscape(caseID) + "/cache"
				if err := callServer(cmd.Context(), http.MethodDelete, endpoint, &resp); err != nil {
					a.logger.Warn("Server caches not invalidated", zap.String("case_id", caseID), zap.Error(err))
				} else {
					answers = resp.AnswersRemoved
				}
			}

			result := map[string]any{
				"case_id":         caseID,
				"turns_removed":   turns,
				"edges_removed":   edges,
				"answers_removed": answers,
			}
			return printResult(result, fmt.Sprintf("%s: %d turns, %d edges, %d cached answers removed", caseID, turns, edges, answers))
		},
	}

	cmd.Flags().BoolVar(&skipServer, "local", false, "Do not contact a running server")
	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (default http://localhost:WEB_PORT)")
	return cmd
}
