package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Kaplaugher/vizume/internal/preflight"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this machine can record",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()

		report := preflight.Run(preflight.Env{
			SpoolDir:       cfg.SpoolDir,
			HandoffPath:    cfg.HandoffPath,
			MaxBufferBytes: cfg.MaxBufferBytes,
			NeedAudio:      cfg.Microphone,
		})

		rows := make([][]string, 0, len(report.Checks))
		for _, c := range report.Checks {
			rows = append(rows, []string{c.Name, strings.ToUpper(string(c.Status)), c.Message})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))

		if report.Overall() == preflight.Fail {
			return fmt.Errorf("preflight failed")
		}
		return nil
	},
}
