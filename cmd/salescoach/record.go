package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/salescoach/internal/coach"
	"github.com/foxseedlab/salescoach/internal/report"
	"github.com/foxseedlab/salescoach/internal/session"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

const stopTimeout = 10 * time.Second

var skipAnalysis bool

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone with live transcription, then analyze the call",
	Args:  cobra.NoArgs,
	RunE:  runRecord,
}

func init() {
	recordCmd.Flags().BoolVar(&skipAnalysis, "no-analysis", false, "print the transcript without requesting coaching feedback")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	newRecorder, err := do.Invoke[session.RecorderFactory](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve recorder: %w", err)
	}
	startMetrics(ctx)

	live := &livePrinter{out: out}
	ended := make(chan string, 1)
	rec := newRecorder(session.Hooks{
		OnTranscript: live.print,
		OnStop: func(final string) {
			select {
			case ended <- final:
			default:
			}
		},
		OnError: func(err error) {
			slog.Error("recording error", "error", err)
		},
	})
	defer func() {
		if err := rec.Close(); err != nil {
			slog.Warn("failed to close recorder", "error", err)
		}
	}()

	if err := rec.Start(ctx); err != nil {
		fmt.Fprintf(out, report.MessageStartFailed+"\n", err)
		return err
	}
	fmt.Fprintln(out, report.MessageRecordingStarted)

	var final string
	endedByStream := false
	select {
	case <-waitForEnter(cmd.InOrStdin()):
	case <-ctx.Done():
	case final = <-ended:
		endedByStream = true
	}
	if !endedByStream {
		if final, err = stopRecording(rec, ended); err != nil {
			return err
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, report.MessageRecordingStopped)

	final = strings.TrimSpace(final)
	if final == "" {
		fmt.Fprintln(out, report.MessageEmptyTranscript)
		return nil
	}
	if skipAnalysis {
		fmt.Fprintln(out, final)
		return nil
	}

	svc, err := do.Invoke[*coach.Service](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve coach service: %w", err)
	}
	fmt.Fprintln(out, report.MessageAnalyzing)
	r, err := svc.AnalyzeTranscript(context.WithoutCancel(ctx), "record", final)
	if err != nil {
		fmt.Fprintf(out, report.MessageAnalysisFailed+"\n", err)
		return err
	}
	fmt.Fprintln(out, report.Build(r, time.Local))
	return nil
}

func stopRecording(rec *session.Recorder, ended <-chan string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	final, stopped, err := rec.Stop(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to stop recording: %w", err)
	}
	if stopped {
		return final, nil
	}
	// already torn down by a remote close or failure
	select {
	case final := <-ended:
		return final, nil
	default:
		return "", nil
	}
}

// waitForEnter closes the returned channel when a line is read. On EOF it
// never fires, so non-interactive runs stop on a signal instead.
func waitForEnter(in io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return
		}
		close(done)
	}()
	return done
}

// livePrinter writes only the newly appended part of the live transcript.
type livePrinter struct {
	out     io.Writer
	printed string
}

func (p *livePrinter) print(live string) {
	if strings.HasPrefix(live, p.printed) {
		fmt.Fprint(p.out, live[len(p.printed):])
	} else {
		fmt.Fprint(p.out, "\n"+live)
	}
	p.printed = live
}
