package main

import (
    "context"
    "fmt"
    "os"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    cfgpkg "github.com/local/convertdesk/internal/config"
    logpkg "github.com/local/convertdesk/internal/logger"
    "github.com/local/convertdesk/internal/metrics"
    "github.com/local/convertdesk/internal/storage"
    "github.com/local/convertdesk/internal/tasks"
)

// app holds what every command needs once flags and env are resolved.
type app struct {
    cfg     cfgpkg.Config
    client  *tasks.Client
    tracker tasks.Tracker
    redis   *tasks.RedisTracker // nil when tracking in memory
}

func main() {
    if err := newRootCommand().Execute(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func newRootCommand() *cobra.Command {
    a := &app{}
    var envFile string

    root := &cobra.Command{
        Use:   "convertdesk",
        Short: "Drive the document conversion API from the terminal or a local editor",
        Long: `convertdesk submits conversion jobs (crop, watermark, organize, merge, convert)
to the conversion API, follows background tasks to completion and stores the
results locally or in S3. "convertdesk serve" starts the browser editor.`,
        SilenceUsage: true,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
            if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
                return fmt.Errorf("load %s: %w", envFile, err)
            }
            a.cfg = cfgpkg.FromEnv()
            if err := logpkg.Init(logpkg.Options{
                Level:        a.cfg.Logging.Level,
                Pretty:       a.cfg.Logging.Pretty,
                File:         a.cfg.Logging.File,
                MaxSizeMB:    a.cfg.Logging.MaxSizeMB,
                MaxBackups:   a.cfg.Logging.MaxBackups,
                MaxAgeDays:   a.cfg.Logging.MaxAgeDays,
                Compress:     a.cfg.Logging.Compress,
                Stderr:       cmd.Name() != "serve",
                SendToAxiom:  a.cfg.Axiom.Send && a.cfg.Axiom.APIKey != "",
                AxiomAPIKey:  a.cfg.Axiom.APIKey,
                AxiomOrgID:   a.cfg.Axiom.OrgID,
                AxiomDataset: a.cfg.Axiom.Dataset,
                AxiomFlush:   a.cfg.Axiom.FlushInterval,
            }); err != nil {
                return err
            }
            metrics.Init()
            a.client = tasks.NewClient(a.cfg.API)
            return a.openTracker()
        },
        PersistentPostRun: func(cmd *cobra.Command, args []string) {
            a.close()
        },
    }
    root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")

    root.AddCommand(
        newServeCommand(a),
        newSubmitCommand(a),
        newOrganizeCommand(a),
        newMergeCommand(a),
        newCropCommand(a),
        newWatermarkCommand(a),
        newStatusCommand(a),
        newCancelCommand(a),
    )
    return root
}

// openTracker uses Redis when configured. Several processes may share the
// hash; each one only sweeps its own entries on shutdown.
func (a *app) openTracker() error {
    if a.cfg.Tracker.RedisURL == "" {
        a.tracker = tasks.NewMemoryTracker()
        return nil
    }
    rt, err := tasks.NewRedisTracker(a.cfg.Tracker.RedisURL, a.cfg.Tracker.Key)
    if err != nil {
        return fmt.Errorf("task tracker: %w", err)
    }
    a.redis, a.tracker = rt, rt
    return nil
}

// sink picks S3 when a bucket is configured, otherwise dir (or the
// configured result directory).
func (a *app) sink(ctx context.Context, dir string) (storage.Sink, *storage.S3Sink, error) {
    if a.cfg.Storage.S3Bucket != "" && dir == "" {
        s3, err := storage.NewS3Sink(ctx, a.cfg.Storage)
        if err != nil {
            return nil, nil, err
        }
        return s3, s3, nil
    }
    if dir == "" {
        dir = a.cfg.Storage.ResultDir
    }
    return storage.LocalSink{Dir: dir, Passphrase: a.cfg.Storage.Passphrase}, nil, nil
}

func (a *app) close() {
    if a.redis != nil {
        if err := a.redis.Close(); err != nil {
            log.Debug().Err(err).Msg("redis tracker close failed")
        }
    }
    logpkg.Close()
}
