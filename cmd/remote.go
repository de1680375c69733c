package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"case-explainer/config"
	"case-explainer/doccache"
	"case-explainer/rag"
	"case-explainer/utils"
	webtypes "case-explainer/web/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// The answer and context caches live inside the serving process, so
// invalidate and stats talk to it over HTTP.

func newInvalidateCmd() *cobra.Command {
	var documents bool

	cmd := &cobra.Command{
		Use:   "invalidate <case-id>",
		Short: "Drop cached answers and context of a case on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID := args[0]
			if err := utils.ValidateCaseID(caseID); err != nil {
				return err
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer config.Cleanup()

			if documents {
				docs, err := doccache.New(cfg.DocumentCachePath, cfg.DocumentCacheTTL)
				if err != nil {
					return err
				}
				defer docs.Close()
				if err := docs.Delete(cmd.Context(), caseID); err != nil {
					return err
				}
				logger.Info("Deleted extracted documents", zap.String("case_id", caseID))
			}

			var resp webtypes.InvalidateResponse
			endpoint := baseURL(cfg) + "/api/cases/" + url.PathEscape(caseID) + "/cache"
			if err := callServer(cmd.Context(), http.MethodDelete, endpoint, &resp); err != nil {
				return err
			}
			return printResult(resp, fmt.Sprintf("%s: %d cached answers removed", resp.CaseID, resp.AnswersRemoved))
		},
	}

	cmd.Flags().BoolVar(&documents, "documents", false, "Also delete the extracted documents of the case")
	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (default http://localhost:WEB_PORT)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engine and cache statistics of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			defer config.Cleanup()

			var stats rag.Stats
			if err := callServer(cmd.Context(), http.MethodGet, baseURL(cfg)+"/api/stats", &stats); err != nil {
				return err
			}

			var docStats doccache.Stats
			if docs, err := doccache.New(cfg.DocumentCachePath, cfg.DocumentCacheTTL); err == nil {
				docStats, _ = docs.Stats(cmd.Context())
				docs.Close()
			}

			if jsonOutput {
				return printResult(map[string]any{"engine": stats, "document_cache": docStats}, "")
			}
			fmt.Printf("Queries:          %d\n", stats.TotalQueries)
			fmt.Printf("Cache hits:       %d (%.1f%%)\n", stats.CacheHits, stats.CacheHitRate*100)
			fmt.Printf("Generation calls: %d\n", stats.GenerationCalls)
			fmt.Printf("Errors:           %d\n", stats.ErrorCount)
			fmt.Printf("Avg latency:      %.1fms\n", stats.AvgLatencyMs)
			fmt.Printf("Answer cache:     %d/%d entries, %d evictions, %d expired\n",
				stats.AnswerCache.Size, stats.AnswerCache.Capacity, stats.AnswerCache.Evictions, stats.AnswerCache.Expired)
			fmt.Printf("Context cache:    %d/%d entries, %d evictions, %d expired\n",
				stats.ContextCache.Size, stats.ContextCache.Capacity, stats.ContextCache.Evictions, stats.ContextCache.Expired)
			fmt.Printf("Document cache:   %d entries\n", docStats.Entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (default http://localhost:WEB_PORT)")
	return cmd
}

func baseURL(cfg *config.Config) string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", cfg.WebPort)
}

func callServer(ctx context.Context, method, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func printResult(v any, text string) error {
	if jsonOutput || text == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(text)
	return nil
}
