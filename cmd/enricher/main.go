package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunescope/enricher/config"
	"github.com/tunescope/enricher/internal/budget"
	"github.com/tunescope/enricher/internal/cache"
	"github.com/tunescope/enricher/internal/enrich"
	"github.com/tunescope/enricher/internal/llm"
	"github.com/tunescope/enricher/internal/ratelimit"
	"github.com/tunescope/enricher/internal/search"
	srv "github.com/tunescope/enricher/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "enricher"}
	var cfgPath string
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./enricher.yaml)")

	root.AddCommand(serveCMD(&cfgPath), enrichCMD(&cfgPath), batchCMD(&cfgPath), validateKeyCMD(&cfgPath), usageCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg)
		},
	}
}

func enrichCMD(cfgPath *string) *cobra.Command {
	var genre, region, campaign string
	var noCache bool
	cmd := &cobra.Command{
		Use:   "enrich <name> <email>",
		Short: "Enrich a single contact and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(*cfgPath)
			if err != nil {
				return err
			}
			opts := &enrich.Options{NoCache: noCache}
			if genre != "" || region != "" || campaign != "" {
				opts.Context = &enrich.EnrichmentContext{
					Genre:        genre,
					Region:       region,
					CampaignType: enrich.CampaignType(campaign),
				}
			}
			result := svc.EnrichContact(cmd.Context(), enrich.Contact{Name: args[0], Email: args[1]}, opts)
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&genre, "genre", "", "genre hint")
	cmd.Flags().StringVar(&region, "region", "", "region hint")
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign type: radio, press, playlist or all")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the enrichment cache")
	return cmd
}

func batchCMD(cfgPath *string) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "batch <contacts.json>",
		Short: "Enrich a JSON file of contacts and print the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var contacts []enrich.Contact
			if err := json.Unmarshal(data, &contacts); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			svc, err := buildService(*cfgPath)
			if err != nil {
				return err
			}
			opts := &enrich.Options{
				NoCache: noCache,
				OnProgress: func(p enrich.Progress) {
					fmt.Fprintf(os.Stderr, "progress: %d/%d done, %d failed, %d in flight\n",
						p.Completed, p.Total, p.Failed, p.InProgress)
				},
			}
			results := svc.EnrichBatch(cmd.Context(), contacts, opts)
			return printJSON(results)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the enrichment cache")
	return cmd
}

func validateKeyCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-key",
		Short: "Check that the configured completion API key works",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(*cfgPath)
			if err != nil {
				return err
			}
			if !svc.ValidateAPIKey(cmd.Context()) {
				return fmt.Errorf("API key is missing or invalid")
			}
			fmt.Println("API key is valid")
			return nil
		},
	}
}

func usageCMD(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print spend, search quota and cache stats from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := config.LoadConfig(*cfgPath)
				if err != nil {
					return err
				}
				addr = "http://localhost" + cfg.Server.Addr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/usage", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
			}
			fmt.Println(string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server base URL (default from config)")
	return cmd
}

// buildService wires a local pipeline for one-shot CLI commands. The
// in-memory cache keeps these hermetic unless redis is configured.
func buildService(cfgPath string) (*enrich.Service, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	client := llm.NewAnthropicClient(cfg.LLM)
	quota := search.NewQuotaTracker(cfg.Search.DailyLimit)
	searcher := search.NewGoogleClient(cfg.Search, quota)

	var store cache.Store
	if cfg.Cache.Backend == "redis" {
		rdb, err := cache.NewRedis(context.Background(),
			fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		store = rdb
	} else {
		store = cache.NewMemory(cfg.Cache.TTL)
	}

	costs := budget.NewCostTracker(budget.Limits{
		DailyLimit:     cfg.Budget.DailyLimit,
		RequestLimit:   cfg.Budget.RequestLimit,
		CheaperAtShare: cfg.Budget.CheaperAtShare,
	})
	limiter := ratelimit.New(cfg.RateLimit.EnrichmentPerMinute, time.Minute)

	return enrich.NewService(cfg, client, searcher, store, costs, limiter, nil), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
