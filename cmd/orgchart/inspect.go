package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"orgchart/internal/domain"
	"orgchart/internal/service"
)

func inspectCmd(flags *globalFlags) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Build the graph model of the account and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := flags.load()
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
			res, err := svc.Inspect(cmd.Context(), cfg.Graph.Account, cfg.GraphOptions())
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n\n", Brand.Sprint("orgchart"), Info.Sprint(cfg.Graph.Account))
			stat("Nodes", len(res.Graph.Nodes))
			stat("Edges", len(res.Graph.Edges))
			warnStat("Dangling", res.Dangling)
			warnStat("Duplicates", res.Duplicates)
			warnStat("Singletons", res.Singletons)
			if last, ok, err := repo.LastImport(cmd.Context(), cfg.Graph.Account); err == nil && ok {
				stat("Imported", last.Local().Format("2006-01-02 15:04:05"))
			}

			if verbose {
				fmt.Println()
				printTree(res.Graph)
			}

			fmt.Println()
			if path == "" {
				path = "defaults"
			}
			fmt.Println(Subtle.Sprintf("  config: %s", path))
			fmt.Println(Subtle.Sprint("  " + cfg.Summary()))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every node with its reports")
	return cmd
}

// printTree lists each node followed by the nodes it links to
func printTree(g *domain.Graph) {
	labels := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		labels[n.ID] = n.Label
	}
	children := make(map[string][]string)
	for _, e := range g.Edges {
		children[e.Source] = append(children[e.Source], e.Target)
	}

	nodes := append([]domain.Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Label < nodes[j].Label })

	for _, n := range nodes {
		fmt.Printf("  %s %s\n", Good.Sprint(n.Label), Subtle.Sprintf("(%s)", n.ID))
		kids := children[n.ID]
		sort.Slice(kids, func(i, j int) bool { return labels[kids[i]] < labels[kids[j]] })
		for _, id := range kids {
			fmt.Printf("    └ %s\n", labels[id])
		}
	}
}
