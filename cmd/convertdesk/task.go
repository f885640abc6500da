package main

import (
    "bytes"
    "encoding/json"
    "errors"
    "fmt"
    "image"
    _ "image/jpeg"
    _ "image/png"

    "github.com/spf13/cobra"

    "github.com/local/convertdesk/internal/present"
    "github.com/local/convertdesk/internal/tasks"
)

func imageSize(data []byte) (float64, float64, error) {
    cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
    if err != nil {
        return 0, 0, fmt.Errorf("watermark image: %w", err)
    }
    return float64(cfg.Width), float64(cfg.Height), nil
}

func handleArgs(token *string) cobra.PositionalArgs {
    return func(cmd *cobra.Command, args []string) error {
        if err := cobra.ExactArgs(1)(cmd, args); err != nil {
            return err
        }
        if *token == "" {
            return errors.New("--token is required")
        }
        return nil
    }
}

func newStatusCommand(a *app) *cobra.Command {
    var token string
    cmd := &cobra.Command{
        Use:     "status --token <token> <task-id>",
        Short:   "Print the status of a background task",
        Example: `  convertdesk status --token 3f9c... 7d1e2a40-...`,
        Args:    handleArgs(&token),
        RunE: func(cmd *cobra.Command, args []string) error {
            rep, err := a.client.Status(cmd.Context(), tasks.Handle{TaskID: args[0], TaskToken: token})
            if err != nil {
                return errors.New(present.Message(err))
            }
            enc := json.NewEncoder(cmd.OutOrStdout())
            enc.SetIndent("", "  ")
            return enc.Encode(rep)
        },
    }
    cmd.Flags().StringVar(&token, "token", "", "task token returned on submission")
    return cmd
}

func newCancelCommand(a *app) *cobra.Command {
    var token string
    cmd := &cobra.Command{
        Use:   "cancel --token <token> <task-id>",
        Short: "Cancel a background task",
        Args:  handleArgs(&token),
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := a.client.Cancel(cmd.Context(), tasks.Handle{TaskID: args[0], TaskToken: token}); err != nil {
                return errors.New(present.Message(err))
            }
            fmt.Fprintln(cmd.OutOrStdout(), "cancel requested")
            return nil
        },
    }
    cmd.Flags().StringVar(&token, "token", "", "task token returned on submission")
    return cmd
}
