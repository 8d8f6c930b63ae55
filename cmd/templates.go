package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List the templates of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, app, err := boot(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		list, err := app.Templates.List(ctx, args[0], themeFlag(cmd))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tTITLE\tMODIFIED")
		for _, t := range list {
			modified := ""
			if t.MTime > 0 {
				modified = time.Unix(t.MTime, 0).Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.FileName, t.Title, modified)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <type> <file>",
	Short: "Print a stored template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, app, err := boot(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		tpl, err := app.Templates.Get(ctx, args[0], themeFlag(cmd), args[1])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tpl.Content)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse every template of every theme and report broken ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, app, err := boot(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		problems, err := app.Templates.Check(ctx)
		if err != nil {
			return err
		}
		stderr := cmd.ErrOrStderr()
		for _, p := range problems {
			fmt.Fprintf(stderr, "✗ %s/%s: %v\n", p.Theme, p.Type, p.Err)
		}
		if len(problems) > 0 {
			return fmt.Errorf("%d listing(s) failed", len(problems))
		}
		fmt.Fprintln(stderr, "✓ all templates parse")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, checkCmd)
}
