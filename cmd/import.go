package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"case-explainer/ingest"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var skipEmbeddings bool

	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load case records into the stores",
		Long: `Import reads a JSON array of case records and writes each one to the
relational store, the document cache, the vector index and the graph.
Answers already cached by a running server are not touched; use
"invalidate" for the imported cases afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := ingest.Decode(f)
			if err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			in := &ingest.Ingester{
				Cases:     a.store,
				Documents: a.docs,
				Logger:    a.logger,
			}
			if !skipEmbeddings {
				in.Embeddings = a.vectors
			}
			if a.graph.Enabled() {
				in.Graph = a.graph
			}

			results, err := in.IngestAll(cmd.Context(), records)
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(results); encErr != nil {
					return encErr
				}
			} else {
				for _, r := range results {
					fmt.Printf("%s: %d similar, %d programs, embedded=%t", r.CaseID, r.SimilarEdges, r.Programs, r.Embedded)
					if len(r.Warnings) > 0 {
						fmt.Printf(", failed: %v", r.Warnings)
					}
					fmt.Println()
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&skipEmbeddings, "skip-embeddings", false, "Do not call the embedding service")
	return cmd
}
