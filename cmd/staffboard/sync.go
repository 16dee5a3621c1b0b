package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/config"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run the bootstrap pipeline once and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd, config.SyncRequired)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.sync == nil {
				return errors.New("sync requires backend.base_url")
			}
			report, runErr := a.sync.Run(cmd.Context())
			if err := writeSyncReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if skipped := report.Skipped(); len(skipped) > 0 {
				return fmt.Errorf("sync finished with skipped stages: %v", skipped)
			}
			return nil
		},
	}
}

type syncStageOutput struct {
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Attempts int    `yaml:"attempts"`
	Records  string `yaml:"records"`
	Failures int    `yaml:"failures,omitempty"`
	Error    string `yaml:"error,omitempty"`
	Took     string `yaml:"took"`
}

type syncReportOutput struct {
	RunID    string            `yaml:"run_id"`
	Started  string            `yaml:"started"`
	Duration string            `yaml:"duration"`
	Stages   []syncStageOutput `yaml:"stages"`
}

func writeSyncReport(w io.Writer, report application.SyncReport) error {
	out := syncReportOutput{
		RunID:    report.RunID,
		Started:  report.StartedAt.UTC().Format(time.RFC3339),
		Duration: report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
	}
	for _, st := range report.Stages {
		out.Stages = append(out.Stages, syncStageOutput{
			Name:     st.Name,
			Status:   st.Status,
			Attempts: st.Attempts,
			Records:  humanize.Comma(int64(st.Records)),
			Failures: st.Failures,
			Error:    st.Error,
			Took:     st.Duration.Round(time.Millisecond).String(),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
