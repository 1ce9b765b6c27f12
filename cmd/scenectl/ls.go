package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/scene/scene"
	"github.com/pithecene-io/scene/scene/archive"
)

var lsPrefix string

func init() {
	lsCmd.Flags().StringVar(&lsPrefix, "prefix", "", "Only list archives under this prefix")
	rootCmd.AddCommand(lsCmd)
}

var lsCmd = &cobra.Command{
	Use:   "ls [archive...]",
	Short: "List archives, or the datasets and composites of the given archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			dirs, err := archive.ListArchives(ctx, store, lsPrefix)
			if err != nil {
				return err
			}
			for _, d := range dirs {
				fmt.Fprintln(out, d)
			}
			return nil
		}
		for _, dir := range args {
			s, err := openScene(ctx, store, dir, log)
			if err != nil {
				return err
			}
			if err := describe(out, dir, s); err != nil {
				return err
			}
		}
		return nil
	},
}

func describe(w io.Writer, dir string, s *scene.Scene) error {
	ids, err := s.AvailableDatasetIDs("", false)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", dir)
	fmt.Fprintf(w, "  sensors:    %s\n", strings.Join(s.SensorNames(), ", "))
	fmt.Fprintf(w, "  time:       %s .. %s\n", s.StartTime().UTC().Format("2006-01-02T15:04:05Z"), s.EndTime().UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "  datasets:\n")
	for _, id := range ids {
		fmt.Fprintf(w, "    %s\n", id)
	}
	if names := s.AvailableCompositeNames(); len(names) > 0 {
		fmt.Fprintf(w, "  composites: %s\n", strings.Join(names, ", "))
	}
	if names := s.AllModifierNames(); len(names) > 0 {
		fmt.Fprintf(w, "  modifiers:  %s\n", strings.Join(names, ", "))
	}
	return nil
}
