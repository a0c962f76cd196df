package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/session"
	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			return listSessions(cmd, cfg.SessionDir)
		},
	}
}

func listSessions(cmd *cobra.Command, dir string) error {
	names, err := session.List(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "No sessions in %s\n", dir)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tSTEPS\tCOST\tTASK")
	for _, name := range names {
		sess, err := session.Load(dir, name)
		if err != nil {
			fmt.Fprintf(w, "%s\t(unreadable)\t\t\t\n", name)
			continue
		}
		status := sess.Info.ExitStatus
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t$%.2f\t%s\n", name, status, sess.Info.ModelCalls, sess.Info.ModelCost, firstLine(sess.Task, 60))
	}
	return w.Flush()
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
