package commands

import (
	"fmt"
	"os"
	"strconv"

	"esaj-crawler/internal/model"
	"esaj-crawler/internal/oab"
	"esaj-crawler/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var casesPrefix string

func init() {
	casesCmd.Flags().StringVar(&casesPrefix, "prefix", "", "State prefix used when the registration is given as a bare number.")
	rootCmd.AddCommand(casesCmd)
}

var casesCmd = &cobra.Command{
	Use:   "cases <registration>",
	Short: "Prints the cases stored in the database for one registration.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Output.Database == "" {
			return fmt.Errorf("output.database is not configured")
		}
		ctx := cmd.Context()

		id := args[0]
		if index, err := strconv.Atoi(id); err == nil {
			prefix := casesPrefix
			if prefix == "" {
				prefix = cfg.Sweep.Prefix
			}
			id = oab.Format(index, prefix)
		}

		sqlStore := store.NewSQLStore(cfg.Output.Database, reporter)
		cases, err := sqlStore.Cases(ctx, id)
		if err != nil {
			return err
		}
		total, err := sqlStore.CountCases(ctx)
		if err != nil {
			return err
		}

		// documents only live next to the cases when they are stored in sql
		withDocs := cfg.Output.Documents == "sql"

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		header := table.Row{"Case", "Class", "Subject", "Received", "Court"}
		if withDocs {
			header = append(header, "Documents")
		}
		t.AppendHeader(header)
		for _, c := range cases {
			row := table.Row{
				c.CaseNumber,
				c.CaseClass,
				c.Subject,
				model.Deref(c.ReceivedDate),
				model.Deref(c.Court),
			}
			if withDocs {
				docs, err := sqlStore.CountDocuments(ctx, c.CaseNumber)
				if err != nil {
					return err
				}
				row = append(row, docs)
			}
			t.AppendRow(row)
		}
		t.AppendFooter(table.Row{id, fmt.Sprintf("%d of %d stored", len(cases), total)})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
