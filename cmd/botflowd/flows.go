package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petrijr/botflow/internal/persistence"
	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/blocks"
)

// readFlow decodes a JSON or YAML flow file and builds every block, so the
// same checks run as when a worker starts.
func readFlow(path string) (api.FlowGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.FlowGraph{}, err
	}
	g, err := persistence.DecodeFlowFile(path, data)
	if err != nil {
		return api.FlowGraph{}, err
	}
	if err := g.Validate(); err != nil {
		return api.FlowGraph{}, err
	}
	if _, err := blocks.NewRegistry(blocks.Options{}).Build(&g); err != nil {
		return api.FlowGraph{}, err
	}
	return g, nil
}

func openStore(ctx context.Context, opts *rootOptions) (*persistence.Persistence, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	return persistence.Open(ctx, cfg.StoreOptions())
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a flow file loads and every node builds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readFlow(args[0])
			if err != nil {
				return err
			}
			start, ok := g.StartNode()
			if !ok {
				start = "(none)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, %d edges, start node %s\n", len(g.Nodes), len(g.Edges), start)
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bot-id> <file>",
		Short: "Validate a flow file and store it for a bot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readFlow(args[1])
			if err != nil {
				return err
			}
			p, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Flows.SaveFlow(cmd.Context(), args[0], g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported flow for %s\n", args[0])
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <bot-id>",
		Short: "Print the stored flow of a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer p.Close()

			g, err := p.Flows.LoadFlow(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			var out []byte
			switch format {
			case "json":
				out, err = persistence.EncodeFlow(g)
				out = append(out, '\n')
			case "yaml":
				out, err = persistence.EncodeFlowYAML(g)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the bots that have a stored flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer p.Close()

			ids, err := p.Flows.ListFlows(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
