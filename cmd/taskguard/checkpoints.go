package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taskguard/internal/infra/checkpoint"
	"taskguard/internal/infra/filestore"
	"taskguard/internal/shared/config"
	jsonx "taskguard/internal/shared/json"
)

func newCheckpointsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"cp"},
		Short:   "Inspect persisted phase checkpoints",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the newest checkpoint of every phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openFileStore(cmd, root)
			if err != nil {
				return err
			}
			printCheckpoints(cmd.OutOrStdout(), store.Dir(), store.List())
			return nil
		},
	})

	var history bool
	show := &cobra.Command{
		Use:   "show <phase>",
		Short: "Print the newest checkpoint for a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openFileStore(cmd, root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if history {
				paths, err := store.History(args[0])
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				return nil
			}
			cp, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cp == nil {
				return fmt.Errorf("no checkpoint for %q in %s", args[0], store.Dir())
			}
			data, err := jsonx.MarshalIndentLine(cp)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	show.Flags().BoolVar(&history, "history", false, "List every checkpoint file for the phase, oldest first")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <phase>",
		Short: "Remove every checkpoint for a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openFileStore(cmd, root)
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successLine(fmt.Sprintf("Deleted checkpoints for %s", args[0])))
			return nil
		},
	})
	return cmd
}

func openFileStore(cmd *cobra.Command, root *rootOptions) (*checkpoint.FileStore, error) {
	cfg, err := root.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Checkpoint.Kind == config.CheckpointKindMemory {
		return nil, errors.New("checkpoint.kind is memory; nothing is persisted to inspect")
	}
	return checkpoint.NewFileStore(filestore.ResolvePath(cfg.CheckpointDir(), ""))
}
