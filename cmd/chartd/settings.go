package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"stockchart/config"
	"stockchart/internal/settings"
	"stockchart/internal/store/sqlite"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and restore saved settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup("chartd-settings")
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		backend, _, err := openSettings(ctx, cfg, nil, log)
		if err != nil {
			return err
		}
		defer backend.Close()
		svc := settings.NewService(backend, cfg.Settings.Key, log)
		if err := svc.Load(ctx); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(svc.Get())
	},
}

var settingsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous versions (sqlite backend)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, key, err := openHistory()
		if err != nil {
			return err
		}
		defer st.Close()
		versions, err := st.History(context.Background(), key, 0)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tSAVED\tBYTES")
		for i, v := range versions {
			fmt.Fprintf(w, "%d\t%s\t%d\n", i, v.CreatedAt.Format(time.RFC3339), len(v.Data))
		}
		return w.Flush()
	},
}

var settingsRestoreCmd = &cobra.Command{
	Use:   "restore <version>",
	Short: "Restore a version listed by history (sqlite backend)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "version")
		}
		st, key, err := openHistory()
		if err != nil {
			return err
		}
		defer st.Close()
		data, err := st.Restore(context.Background(), key, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored version %d (%d bytes)\n", i, len(data))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsHistoryCmd, settingsRestoreCmd)
}

func openHistory() (*sqlite.Store, string, error) {
	cfg, log, err := setup("chartd-settings")
	if err != nil {
		return nil, "", err
	}
	if cfg.Settings.Backend != config.BackendSQLite {
		return nil, "", errors.Errorf("history needs the sqlite backend, configured %q", cfg.Settings.Backend)
	}
	st, err := sqlite.New(sqlite.Config{Path: cfg.Settings.SQLitePath, Log: log})
	if err != nil {
		return nil, "", err
	}
	return st, cfg.Settings.Key, nil
}
