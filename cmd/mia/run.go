package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rahul/mia/pkg/config"
	"github.com/spf13/cobra"
)

func runCMD(load func() *config.Config) *cobra.Command {
	var conversation int64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run one mission and print its record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.Join(args, " ")
			return withApp(load(), func(a *app) error {
				var conv *int64
				if cmd.Flags().Changed("conversation") {
					conv = &conversation
				}
				rec, err := a.orchestrator.StartMission(cmd.Context(), goal, conv)
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(rec); encErr != nil {
						return encErr
					}
				} else {
					fmt.Print(rec.Summary())
				}
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&conversation, "conversation", 0, "conversation id to file the report under")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the mission record as JSON")
	return cmd
}

func analyzeCMD(load func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <goal>",
		Short: "Name the intent of a goal without running a mission",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load(), func(a *app) error {
				fmt.Println(a.analyst.Identify(cmd.Context(), strings.Join(args, " ")))
				return nil
			})
		},
	}
}
