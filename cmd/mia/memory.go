package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rahul/mia/internal/store"
	"github.com/rahul/mia/pkg/config"
	"github.com/spf13/cobra"
)

func historyCMD(load func() *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent missions from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			audit, err := store.NewAuditStore(load().Memory.AuditPath)
			if err != nil {
				return err
			}
			defer audit.Close()

			entries, err := audit.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MISSION\tCONVERSATION\tSTATUS\tWHEN\tQUERY")
			for _, e := range entries {
				conv := "-"
				if e.ConversationID != nil {
					conv = fmt.Sprint(*e.ConversationID)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.MissionID, conv, e.Status, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Query)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of missions to show")
	return cmd
}

func recallCMD(load func() *config.Config) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search archived reports and fetched pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := store.NewDocumentStore(load().Memory.DocumentsPath, store.ReadOnly())
			if err != nil {
				return err
			}
			defer index.Close()

			docs, err := index.SimilaritySearch(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("Nothing found.")
				return nil
			}
			for i, d := range docs {
				fmt.Printf("%d. %v (%.2f)\n%s\n\n", i+1, d.Metadata["title"], d.Score, excerpt(d.PageContent, 300))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "n", 5, "number of documents to show")
	return cmd
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
