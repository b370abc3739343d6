package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/newsroom-bridge/internal/api"
	"github.com/Adda-Baaj/newsroom-bridge/internal/importer"
)

const shutdownTimeout = 10 * time.Second

func newSearchCommand(load loader) *cobra.Command {
	var sort, token string
	cmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Search AP content and list matching items",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.svc.Search(cmd.Context(), importer.SearchQuery{
				Keywords:  strings.Join(args, " "),
				Sort:      sort,
				PageToken: token,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringVar(&sort, "sort", importer.SortRelevance, "sort order, e.g. versioncreated:desc")
	cmd.Flags().StringVar(&token, "page-token", "", "token from a previous page")
	return cmd
}

func newKindsCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the entity kinds items can be imported as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.svc.Kinds())
		},
	}
}

func newPreviewCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <kind> <item-id>",
		Short: "Map an item into kind and print it without storing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entity, err := a.svc.Preview(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entity)
		},
	}
}

func newImportCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "import <kind> <item-id>",
		Short: "Map, store and announce an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.Import(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newSyncCommand(load loader) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import new feed items on the sync.cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			kind := a.cfg.Sync.Kind
			if kind == "" {
				return errors.New("sync.kind is not set")
			}
			if once {
				res, err := a.svc.SyncFeed(cmd.Context(), kind)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			sched, err := importer.NewScheduler(a.cfg.Sync.Cron, a.svc, kind, a.log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched.Start()
			a.log.InfoObj("feed sync scheduled", "sync", map[string]any{"kind": kind, "cron": a.cfg.Sync.Cron})
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sync and exit")
	return cmd
}

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (and the feed sync when sync.kind is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var sched *importer.Scheduler
			if kind := a.cfg.Sync.Kind; kind != "" {
				if sched, err = importer.NewScheduler(a.cfg.Sync.Cron, a.svc, kind, a.log); err != nil {
					return err
				}
				sched.Start()
			}

			if a.cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:              a.cfg.HTTP.Addr,
				Handler:           api.NewServer(a.svc, a.log).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.InfoObj("http api listening", "http", map[string]any{"addr": srv.Addr})
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if sched != nil {
				sched.Stop(shutdownCtx)
			}
			return srv.Shutdown(shutdownCtx)
		},
	}
}
