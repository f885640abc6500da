package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/convertdesk/internal/preview"
    "github.com/local/convertdesk/internal/statuscheck"
    "github.com/local/convertdesk/internal/tasks"
    "github.com/local/convertdesk/internal/web"
)

func newServeCommand(a *app) *cobra.Command {
    var port, resultDir string
    cmd := &cobra.Command{
        Use:   "serve",
        Short: "Start the local editor server",
        Example: `  convertdesk serve
  PORT=9090 convertdesk serve --results ./out`,
        Args: cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            if port == "" {
                port = a.cfg.Web.Port
            }
            return a.serve(port, resultDir)
        },
    }
    cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8080)")
    cmd.Flags().StringVar(&resultDir, "results", "", "store results in this directory instead of S3")
    return cmd
}

func (a *app) serve(port, resultDir string) error {
    base, stopOps := context.WithCancel(context.Background())
    defer stopOps()

    sink, s3, err := a.sink(base, resultDir)
    if err != nil {
        return err
    }
    opts := statuscheck.Options{
        APIURL:   a.cfg.API.BaseURL,
        S3Bucket: a.cfg.Storage.S3Bucket,
        Renderer: preview.RendererVersion,
    }
    if a.redis != nil {
        opts.Redis = a.redis
    }
    if s3 != nil {
        opts.S3 = s3
    }

    ed := web.New(web.Deps{
        Config:  a.cfg,
        API:     a.client,
        Tracker: a.tracker,
        Sink:    sink,
        Status:  statuscheck.New(opts),
        Base:    base,
    })
    srv := &http.Server{
        Addr:              ":" + port,
        Handler:           ed.Handler(),
        ReadHeaderTimeout: 10 * time.Second,
    }

    errc := make(chan error, 1)
    go func() {
        log.Info().Msgf("editor listening on :%s", port)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
    }()

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    select {
    case sig := <-stop:
        log.Info().Str("signal", sig.String()).Msg("shutting down")
    case err := <-errc:
        return err
    }

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        log.Warn().Err(err).Msg("http shutdown")
    }
    // Abandon before stopping operations so their handles are still tracked.
    a.abandon("shutdown")
    stopOps()
    ed.Close()
    log.Info().Msg("shutdown complete")
    return nil
}

// abandon reports every still-tracked task to the API; failures only log.
func (a *app) abandon(phase string) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    n, err := tasks.AbandonPending(ctx, a.client, a.tracker)
    if err != nil {
        log.Warn().Err(err).Str("phase", phase).Int("abandoned", n).Msg("abandon sweep incomplete")
        return
    }
    if n > 0 {
        log.Info().Str("phase", phase).Int("abandoned", n).Msg("abandoned pending tasks")
    }
}
