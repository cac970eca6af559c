package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Kaplaugher/vizume/internal/handoff"
)

var takeOut string

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Inspect or consume the recording waiting for upload",
}

var handoffShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the pending recording without consuming it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		e, err := handoff.NewFile(cfg.HandoffPath).Peek()
		if errors.Is(err, handoff.ErrEmpty) {
			fmt.Fprintln(cmd.OutOrStdout(), "No recording pending.")
			return nil
		}
		if err != nil {
			return err
		}
		printEntry(cmd.OutOrStdout(), e)
		return nil
	},
}

var handoffTakeCmd = &cobra.Command{
	Use:   "take",
	Short: "Consume the pending recording, copying it to --out",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		e, err := handoff.NewFile(cfg.HandoffPath).Take()
		if errors.Is(err, handoff.ErrEmpty) {
			return errors.New("no recording pending")
		}
		if err != nil {
			return err
		}

		out := takeOut
		if out == "" {
			out = e.Name
		}
		if err := copySpooled(e.URL, out); err != nil {
			return fmt.Errorf("entry consumed but copy failed, spooled file kept at %s: %w", e.URL, err)
		}
		if err := handoff.Release(e.URL); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %s)\n", out, e.Type, humanize.Bytes(uint64(e.Size)))
		return nil
	},
}

var handoffClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the pending recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		return clearPending(cmd.OutOrStdout(), handoff.NewFile(cfg.HandoffPath))
	},
}

// clearPending empties the slot and deletes the spooled file it pointed at.
func clearPending(w io.Writer, store handoff.Store) error {
	e, err := store.Peek()
	if errors.Is(err, handoff.ErrEmpty) {
		fmt.Fprintln(w, "No recording pending.")
		return nil
	}
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	if err := handoff.Release(e.URL); err != nil && !errors.Is(err, handoff.ErrNotSpooled) {
		return err
	}
	fmt.Fprintln(w, "Pending recording discarded.")
	return nil
}

func init() {
	handoffTakeCmd.Flags().StringVarP(&takeOut, "out", "o", "", "destination file (default: the entry name)")

	handoffCmd.AddCommand(handoffShowCmd)
	handoffCmd.AddCommand(handoffTakeCmd)
	handoffCmd.AddCommand(handoffClearCmd)
}

func printEntry(w io.Writer, e handoff.Entry) {
	d := time.Duration(e.Duration * float64(time.Second)).Round(100 * time.Millisecond)
	rows := [][]string{
		{"url", e.URL},
		{"name", e.Name},
		{"type", e.Type},
		{"size", humanize.Bytes(uint64(e.Size)) + " (" + strconv.FormatInt(e.Size, 10) + " bytes)"},
		{"duration", d.String()},
	}
	fmt.Fprintln(w, renderTable(w, []string{"Field", "Value"}, rows, nil))
}

func copySpooled(ref, dst string) error {
	src, err := handoff.Open(ref)
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
