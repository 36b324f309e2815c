package main

import (
	"fmt"
	"time"

	"github.com/foxseedlab/salescoach/internal/coach"
	"github.com/foxseedlab/salescoach/internal/report"
	"github.com/foxseedlab/salescoach/internal/sample"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo [sample]",
	Short: "Analyze a canned sales call transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := do.Invoke[*sample.Library](injector)
		if err != nil {
			return fmt.Errorf("failed to load samples: %w", err)
		}
		name := sample.DefaultName
		if len(args) == 1 {
			name = args[0]
		}
		s, err := lib.Get(name)
		if err != nil {
			return err
		}

		svc, err := do.Invoke[*coach.Service](injector)
		if err != nil {
			return fmt.Errorf("failed to resolve coach service: %w", err)
		}
		startMetrics(cmd.Context())

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, report.MessageAnalyzing)
		r, err := svc.AnalyzeTranscript(cmd.Context(), "demo:"+s.Name, s.Transcript)
		if err != nil {
			fmt.Fprintf(out, report.MessageAnalysisFailed+"\n", err)
			return err
		}
		fmt.Fprintln(out, report.Build(r, time.Local))
		return nil
	},
}

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List canned transcripts available to demo",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := do.Invoke[*sample.Library](injector)
		if err != nil {
			return fmt.Errorf("failed to load samples: %w", err)
		}
		for _, name := range lib.Names() {
			s, _ := lib.Get(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name, s.Title)
		}
		return nil
	},
}
