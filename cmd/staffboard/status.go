package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/staffboard/internal/application"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id>",
		Short: "Print the current status of a user from the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd, nil)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.status.CurrentStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("status of %s: %w", args[0], err)
			}
			return writeStatus(cmd.OutOrStdout(), view)
		},
	}
}

type statusOutput struct {
	UserID   string `yaml:"user_id"`
	Status   string `yaml:"status"`
	Progress string `yaml:"progress"`
	Source   string `yaml:"source"`
	Reason   string `yaml:"reason,omitempty"`
	Window   string `yaml:"window,omitempty"`
	Started  string `yaml:"started,omitempty"`
	Ends     string `yaml:"ends,omitempty"`
	Stale    bool   `yaml:"board_stale,omitempty"`
}

// writeStatus prints view as YAML. Window bounds are shown relative to the
// computation time.
func writeStatus(w io.Writer, view application.StatusView) error {
	out := statusOutput{
		UserID:   view.UserID,
		Status:   string(view.Status),
		Progress: strconv.Itoa(view.Progress) + "%",
		Source:   string(view.Source),
		Reason:   view.Reason,
		Stale:    view.BoardStale,
	}
	if view.WindowStart != nil && view.WindowEnd != nil {
		out.Window = view.WindowStart.Format("15:04") + "-" + view.WindowEnd.Format("15:04")
		out.Started = humanize.RelTime(*view.WindowStart, view.ComputedAt, "ago", "from now")
		out.Ends = humanize.RelTime(*view.WindowEnd, view.ComputedAt, "ago", "from now")
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

