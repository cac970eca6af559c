package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Kaplaugher/vizume/internal/platform/mediadev"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Run: func(cmd *cobra.Command, args []string) {
		loadConfig()
		out := cmd.OutOrStdout()

		devices := mediadev.Enumerate()
		if len(devices) == 0 {
			fmt.Fprintln(out, "No capture devices found.")
			return
		}
		sort.Slice(devices, func(i, j int) bool {
			if devices[i].Kind != devices[j].Kind {
				return devices[i].Kind > devices[j].Kind
			}
			return devices[i].Label < devices[j].Label
		})

		rows := make([][]string, 0, len(devices))
		for _, d := range devices {
			rows = append(rows, []string{d.Kind, d.Label, d.ID})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Kind", "Label", "ID"}, rows, nil))
	},
}
