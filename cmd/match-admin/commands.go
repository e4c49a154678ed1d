package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apphttp "advisor-match-engine/internal/common/http"
)

const (
	app         = "match-admin"
	defaultAddr = "http://localhost:8080"
)

// newRootCmd builds the command tree. Each call gets its own viper instance
// so flags and environment bindings do not leak between invocations.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MATCH_ADMIN")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          app,
		Short:        "match-admin inspects and manages a running compatibility engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("addr", defaultAddr, "base URL of the engine's HTTP server (env MATCH_ADMIN_ADDR)")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	_ = v.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	client := func() *apphttp.Client {
		return apphttp.NewClient(v.GetDuration("timeout")).WithBaseURL(v.GetString("addr"))
	}

	root.AddCommand(
		newStatsCmd(client),
		newClearCmd(client),
		newInvalidateCmd(client),
		newOptimizeCmd(client),
		newScoreCmd(client),
		newTopCmd(client),
		newStrategiesCmd(client),
	)
	return root
}

type clientFactory func() *apphttp.Client

func newStatsCmd(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return get(cmd, client(), "/admin/cache/stats")
		},
	}
}

func newClearCmd(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached score held in memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return post(cmd, client(), "/admin/cache/clear")
		},
	}
}

func newInvalidateCmd(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <entity-id>",
		Short: "Drop cached and stored scores referencing a provider or seeker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(cmd, client(), "/admin/cache/invalidate?"+url.Values{"id": {args[0]}}.Encode())
		},
	}
}

func newOptimizeCmd(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <target-size>",
		Short: "Shrink the cache to its most frequently hit entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.Atoi(args[0])
			if err != nil || target < 0 {
				return fmt.Errorf("target size must be a non-negative integer, got %q", args[0])
			}
			return post(cmd, client(), "/admin/cache/optimize?target="+strconv.Itoa(target))
		},
	}
}

func newScoreCmd(client clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <provider-id> <seeker-id>",
		Short: "Score one provider/seeker pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"providerId": {args[0]}, "seekerId": {args[1]}}
			if s, _ := cmd.Flags().GetString("strategy"); s != "" {
				q.Set("strategy", s)
			}
			if p, _ := cmd.Flags().GetString("preferences"); p != "" {
				q.Set("preferences", p)
			}
			return get(cmd, client(), "/scores?"+q.Encode())
		},
	}
	cmd.Flags().StringP("strategy", "s", "", "scoring strategy (default is the engine's default)")
	cmd.Flags().String("preferences", "", "preferences as a JSON object")
	return cmd
}

func newTopCmd(client clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the best stored matches for a seeker or a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seeker, _ := cmd.Flags().GetString("seeker")
			provider, _ := cmd.Flags().GetString("provider")
			limit, _ := cmd.Flags().GetInt("limit")

			q := url.Values{"limit": {strconv.Itoa(limit)}}
			switch {
			case seeker != "" && provider != "":
				return fmt.Errorf("--seeker and --provider are mutually exclusive")
			case seeker != "":
				q.Set("seekerId", seeker)
			case provider != "":
				q.Set("providerId", provider)
			default:
				return fmt.Errorf("one of --seeker or --provider is required")
			}
			return get(cmd, client(), "/matches/top?"+q.Encode())
		},
	}
	cmd.Flags().String("seeker", "", "seeker id")
	cmd.Flags().String("provider", "", "provider id")
	cmd.Flags().IntP("limit", "n", 10, "number of matches")
	return cmd
}

func newStrategiesCmd(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered scoring strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return get(cmd, client(), "/strategies")
		},
	}
}

func get(cmd *cobra.Command, c *apphttp.Client, path string) error {
	var out json.RawMessage
	if err := c.GetJSON(contextOf(cmd), path, &out); err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func post(cmd *cobra.Command, c *apphttp.Client, path string) error {
	var out json.RawMessage
	if err := c.PostJSON(contextOf(cmd), path, nil, &out); err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
