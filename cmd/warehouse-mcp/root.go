package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duckmesh/warehouse-mcp/internal/config"
	"github.com/duckmesh/warehouse-mcp/internal/mcp"
)

const serviceName = "warehouse-mcp"

type environment struct {
	lookup config.LookupFunc
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	serve  func(ctx context.Context, cfg config.Config, env environment) error
}

// usageError marks failures caused by how the command was invoked. They
// are reported together with the usage text.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type flagBinding struct {
	flag  string
	env   string
	usage string
}

var flagBindings = []flagBinding{
	{"project-id", "WAREHOUSE_MCP_PROJECT_ID", "warehouse project every request is scoped to (required)"},
	{"location", "WAREHOUSE_MCP_LOCATION", "region queries run in (default us-central1)"},
	{"backend", "WAREHOUSE_MCP_BACKEND", "warehouse backend: bigquery or duckdb"},
	{"max-bytes-billed", "WAREHOUSE_MCP_MAX_BYTES_BILLED", "default byte cap for queries"},
	{"credentials-file", "WAREHOUSE_MCP_CREDENTIALS_FILE", "service account key file for the bigquery backend"},
	{"http-addr", "WAREHOUSE_MCP_HTTP_ADDR", "also serve JSON-RPC over HTTP on this address"},
	{"log-level", "WAREHOUSE_MCP_LOG_LEVEL", "debug, info, warn or error"},
}

func execute(ctx context.Context, args []string, env environment) int {
	cmd := newRootCommand(env)
	cmd.SetArgs(args)
	// stdout carries protocol messages only.
	cmd.SetOut(env.stderr)
	cmd.SetErr(env.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(env.stderr, "Error: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			_, _ = fmt.Fprint(env.stderr, cmd.UsageString())
		}
		return 1
	}
	return 0
}

func newRootCommand(env environment) *cobra.Command {
	var configFile string
	var enumerateResources bool

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Read-only MCP server for a SQL warehouse",
		Long: `warehouse-mcp exposes one warehouse project to MCP clients over stdio.

Clients can read table and view schemas as resources and run SQL through the
"query" tool. Statements that modify data or schema are refused before they
reach the warehouse.

Settings are read from flags, then WAREHOUSE_MCP_* environment variables,
then the --config file.`,
		Version:       mcp.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, configFile, env.lookup)
			if err != nil {
				return usageError{err}
			}
			return env.serve(cmd.Context(), cfg, env)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML file of WAREHOUSE_MCP_* settings")
	for _, binding := range flagBindings {
		flags.String(binding.flag, "", binding.usage)
	}
	flags.BoolVar(&enumerateResources, "enumerate-resources", false, "list every table and view in resources/list")
	return cmd
}

// resolveConfig layers explicitly set flags over env over the config file.
func resolveConfig(cmd *cobra.Command, configFile string, env config.LookupFunc) (config.Config, error) {
	lookups := []config.LookupFunc{flagLookup(cmd), env}
	if configFile != "" {
		fileLookup, err := config.FileLookup(configFile)
		if err != nil {
			return config.Config{}, err
		}
		lookups = append(lookups, fileLookup)
	}

	cfg, err := config.Load(serviceName, config.ChainLookup(lookups...))
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func flagLookup(cmd *cobra.Command) config.LookupFunc {
	values := map[string]string{}
	for _, binding := range flagBindings {
		if cmd.Flags().Changed(binding.flag) {
			values[binding.env] = cmd.Flags().Lookup(binding.flag).Value.String()
		}
	}
	if cmd.Flags().Changed("enumerate-resources") {
		values["WAREHOUSE_MCP_ENUMERATE_RESOURCES"] = cmd.Flags().Lookup("enumerate-resources").Value.String()
	}
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
