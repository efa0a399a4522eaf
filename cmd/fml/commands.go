package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/fml/internal/config"
	"github.com/frederic-klein/fml/internal/downloader"
	"github.com/frederic-klein/fml/internal/installer"
	"github.com/frederic-klein/fml/internal/inventory"
	"github.com/frederic-klein/fml/internal/modlist"
	"github.com/frederic-klein/fml/internal/portal"
	"github.com/frederic-klein/fml/internal/resolver"
	"github.com/frederic-klein/fml/internal/retry"
)

func retryPolicy() retry.Policy {
	return retry.Policy{Retries: uint64(cfg.Retries), Wait: retry.Default.Wait}
}

func newPortalClient() *portal.Client {
	return portal.NewClient(cfg.PortalURL, logger,
		portal.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		portal.WithCache(cfg.CacheDir, cfg.CacheTTL),
		portal.WithRetry(retryPolicy()),
	)
}

// resolveGameVersion prefers --game-version over detection.
func resolveGameVersion() (string, error) {
	if gameVersion != "" {
		return gameVersion, nil
	}
	return config.DetectGameVersion(cfg.ModsDirPath)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			defaults := config.File{ModsDirPath: cfg.ModsDirPath, ServerConfigPath: cfg.ServerConfigPath}
			f, err := config.Prompt(cmd.InOrStdin(), cmd.OutOrStdout(), defaults)
			if err != nil {
				return fmt.Errorf("reading answers: %w", err)
			}
			if err := config.WriteFile(path, f); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.ok.Render("Wrote ")+path)
			return nil
		},
	}
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <mod>",
		Short: "Install a mod and its required dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			creds, err := config.ReadServerSettings(cfg.ServerConfigPath)
			if err != nil {
				return err
			}
			gv, err := resolveGameVersion()
			if err != nil {
				return err
			}

			dl, err := downloader.NewDownloader(cfg.PortalURL,
				downloader.Credentials{Username: creds.Username, Token: creds.Token},
				logger,
				downloader.WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout}),
				downloader.WithRetry(retryPolicy()))
			if err != nil {
				return err
			}
			queue := downloader.NewQueue(dl, downloader.DefaultIdleReset)
			defer queue.Close()

			stopProgress := showProgress(ctx, queue)
			inst := installer.New(resolver.NewResolver(newPortalClient(), logger), queue, cfg.ModsDirPath, gv, logger)
			res, err := inst.Install(ctx, args[0])
			stopProgress()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s with %d dependencies\n", styles.ok.Render("Installed"), styles.name.Render(res.ModName), res.DependencyCount)
			for _, n := range res.Installed {
				fmt.Fprintf(out, "  %s %s\n", styles.dim.Render("+"), n)
			}
			return nil
		},
	}
}

// showProgress prints the in-flight download to stderr until stopped.
func showProgress(ctx context.Context, q *downloader.Queue) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		var last downloader.Status
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := q.Status()
				if st == last || !st.Active {
					last = st
					continue
				}
				last = st
				fmt.Fprintf(os.Stderr, "%s %s %3d%%\n", styles.dim.Render("downloading"), st.Title, st.Percent)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the mod portal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gv, err := resolveGameVersion()
			if err != nil {
				logger.Warn("Searching all game versions", "err", err)
				gv = ""
			}

			entries, err := newPortalClient().FetchModList(cmd.Context(), gv)
			if err != nil {
				return err
			}
			var query string
			if len(args) == 1 {
				query = args[0]
			}
			matches := portal.Search(entries, query)
			if limit > 0 && len(matches) > limit {
				matches = matches[:limit]
			}

			out := cmd.OutOrStdout()
			for _, e := range matches {
				row(out, 32, e.Name, fmt.Sprintf("%s %s", e.Title, styles.dim.Render(fmt.Sprintf("(%d downloads)", e.DownloadCount))))
			}
			if len(matches) == 0 {
				fmt.Fprintln(out, styles.dim.Render("no mods found"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum results, 0 for all")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed mods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mods, err := inventory.ReadInstalled(cfg.ModsDirPath, logger)
			if err != nil {
				return err
			}
			list, err := modlist.LoadOrCreate(cfg.ModsDirPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.heading.Render(fmt.Sprintf("%d mods in %s", len(mods), cfg.ModsDirPath)))
			for _, m := range mods {
				row(out, 32, m.Name, fmt.Sprintf("%-10s %s %s", m.Version, enabledMark(list.IsEnabled(m.Name)), styles.dim.Render(m.Title)))
			}
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <mod>",
		Short: "Delete an installed mod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := installer.Remove(cfg.ModsDirPath, args[0], logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", styles.ok.Render("Removed"), styles.name.Render(m.Name), m.Version)
			return nil
		},
	}
}

func newEnableCmd(enable bool) *cobra.Command {
	use, short := "enable", "Enable an installed mod"
	if !enable {
		use, short = "disable", "Disable a mod"
	}
	return &cobra.Command{
		Use:   use + " <mod>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := installer.SetEnabled(cfg.ModsDirPath, args[0], enable, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styles.name.Render(args[0]), enabledMark(enable))
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the installed mods whenever the mods directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := inventory.NewWatcher(cfg.ModsDirPath, debounce, logger)
			if err != nil {
				return err
			}
			defer w.Stop()
			if err := w.Start(); err != nil {
				return fmt.Errorf("watching %s: %w", cfg.ModsDirPath, err)
			}
			logger.Info("Watching", "dir", cfg.ModsDirPath)

			out := cmd.OutOrStdout()
			for {
				select {
				case <-cmd.Context().Done():
					if errors.Is(cmd.Context().Err(), context.Canceled) {
						return nil
					}
					return cmd.Context().Err()
				case mods := <-w.Snapshots:
					names := make([]string, len(mods))
					for i, m := range mods {
						names[i] = fmt.Sprintf("%s@%s", m.Name, m.Version)
					}
					fmt.Fprintf(out, "%s %d mods: %s\n", styles.dim.Render(time.Now().Format(time.TimeOnly)), len(mods), strings.Join(names, " "))
				}
			}
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", inventory.DefaultDebounce, "Quiet period before rescanning")
	return cmd
}
