package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"orgchart/internal/service"
)

func importCmd(flags *globalFlags) *cobra.Command {
	var (
		replace bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import records, nodes and links from a yaml, json or toml fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			repo, err := openRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := service.NewGraphService(repo, service.NewEventBus(), logger)

			strategy := service.StrategyMerge
			if replace {
				strategy = service.StrategyReplace
			}

			path := args[0]
			var res *service.ImportResult
			if format != "" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				res, err = svc.Import(cmd.Context(), cfg.Graph.Account, format, f, strategy)
				if err != nil {
					return err
				}
			} else {
				res, err = svc.ImportFile(cmd.Context(), cfg.Graph.Account, path, strategy)
				if err != nil {
					return err
				}
			}

			fmt.Printf("%s %s into %s\n", Good.Sprint("imported"), filepath.Base(path), Info.Sprint(cfg.Graph.Account))
			stat("Records", res.Records)
			stat("Nodes", res.Nodes)
			stat("Links", res.Links)
			stat("Strategy", res.Strategy)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "replace the account's nodes and records instead of merging")
	cmd.Flags().StringVarP(&format, "format", "f", "", "input format: yaml, json or toml (default: from the file extension)")
	return cmd
}
