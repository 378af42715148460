package cmd

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/observability"
	"github.com/xkilldash9x/surfer/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newAbortCmd flags the active run so its loop stops at the top of the next
// iteration. With the memory store this only reaches runs in the same
// process, so it is meant for shared stores.
func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort",
		Short: "Asks the active run to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx, cfg.Store(), observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			defer closeStore()

			abort := true
			if _, err := st.Save(ctx, schemas.RunPatch{Abort: &abort}); err != nil {
				if errors.Is(err, store.ErrNoActiveRun) {
					fmt.Fprintln(cmd.OutOrStdout(), "No active run.")
					return nil
				}
				return fmt.Errorf("failed to flag run: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Abort requested.")
			return nil
		},
	}
}

type statusView struct {
	schemas.RunRecord
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the active run record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx, cfg.Store(), observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			defer closeStore()

			rec, err := st.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}
			if rec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No active run.")
				return nil
			}
			view := statusView{RunRecord: *rec, Version: rec.Version}
			if !rec.UpdatedAt.IsZero() {
				view.UpdatedAt = rec.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
			}
			data, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode run: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
