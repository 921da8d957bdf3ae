package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soypat/lcsp/internal"
)

// Version is set by the main package at build time.
var Version = "dev"

type flags struct {
	configPath string
	jsonOutput bool
	verbose    int
	packets    int
	seed       uint32
	randKind   string
}

// NewRootCommand returns the lcspsim command tree.
func NewRootCommand() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "lcspsim",
		Short:         "Exercise a port binding table with synthetic traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML node configuration file")
	pf.BoolVar(&f.jsonOutput, "json", false, "Output in JSON format")
	pf.CountVarP(&f.verbose, "verbose", "v", "Increase log verbosity (-v debug, -vv trace)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Bind the configured ports and dispatch random packets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			node, err := NewNode(cfg, f.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			rep := node.Run(rand.New(rand.NewSource(int64(cfg.Seed))))
			if err := node.Close(); err != nil {
				return err
			}
			if f.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			return writeReport(cmd.OutOrStdout(), rep)
		},
	}
	run.Flags().IntVarP(&f.packets, "packets", "n", 0, "Number of packets to send (overrides config)")
	run.Flags().Uint32Var(&f.seed, "seed", 0, "Random seed (overrides config)")
	run.Flags().StringVar(&f.randKind, "rand", "", "Dynamic port random source: xorshift or chacha (overrides config)")

	ports := &cobra.Command{
		Use:   "ports",
		Short: "Show the port bindings resulting from the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			node, err := NewNode(cfg, f.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer node.Close()
			bindings := node.bindingReports()
			if f.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), bindings)
			}
			return writeBindings(cmd.OutOrStdout(), bindings)
		},
	}
	root.AddCommand(run, ports)
	return root
}

// Execute runs root and exits with a non-zero status on error.
func Execute(root *cobra.Command) {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (f *flags) config(cmd *cobra.Command) (Config, error) {
	cfg := DefaultConfig()
	if f.configPath != "" {
		var err error
		cfg, err = LoadConfig(f.configPath)
		if err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("packets") {
		cfg.Packets = f.packets
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = f.seed
	}
	if cmd.Flags().Changed("rand") {
		cfg.Rand = f.randKind
	}
	return cfg, cfg.Validate()
}

func (f *flags) logger(w io.Writer) *slog.Logger {
	lvl := slog.LevelWarn
	switch {
	case f.verbose >= 2:
		lvl = internal.LevelTrace
	case f.verbose == 1:
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeBindings(w io.Writer, bindings []BindingReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tKIND\tRECEIVED")
	for _, b := range bindings {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Port, b.Kind, b.Received)
	}
	return tw.Flush()
}

func writeReport(w io.Writer, rep Report) error {
	if err := writeBindings(w, rep.Bindings); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nsent=%d rejected=%d nobuf=%d delivered=%d callbacks=%d dropped=%d\npool: total=%d inuse=%d gets=%d frees=%d misses=%d badfrees=%d\n",
		rep.Sent, rep.Rejected, rep.NoBuffer, rep.Table.Delivered, rep.Table.Callbacks, rep.Table.Dropped,
		rep.Pool.Total, rep.Pool.InUse, rep.Pool.Gets, rep.Pool.Frees, rep.Pool.Misses, rep.Pool.BadFrees)
	return err
}
