package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/campaign"
	"github.com/leadon/outreach-cli/internal/intent"
	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/resilience"
	"github.com/leadon/outreach-cli/internal/search"
	"github.com/leadon/outreach-cli/internal/workflow"
	"github.com/leadon/outreach-cli/pkg/anthropic"
	"github.com/leadon/outreach-cli/pkg/apollo"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for search and campaign triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("POST /webhook/search", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Query  string `json:"query"`
				Target int    `json:"target"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if req.Query == "" {
				http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
				return
			}
			if cfg.Anthropic.Key == "" || cfg.Apollo.Key == "" {
				http.Error(w, `{"error":"search providers not configured"}`, http.StatusServiceUnavailable)
				return
			}

			// Run the search asynchronously; the run is inspectable afterwards
			// via the runs commands.
			go func() {
				parser := intent.NewParser(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
				parsed, err := parser.Parse(ctx, req.Query)
				if err != nil {
					zap.L().Error("webhook search intent parse failed",
						zap.String("query", req.Query), zap.Error(err))
					return
				}

				target := req.Target
				if target == 0 {
					target = parsed.Target
				}
				if target == 0 {
					target = 25
				}

				provider := apollo.NewClient(cfg.Apollo.Key,
					apollo.WithBaseURL(cfg.Apollo.BaseURL),
					apollo.WithRateLimit(cfg.Apollo.RateLimit),
					apollo.WithTimeout(time.Duration(cfg.Apollo.TimeoutSecs)*time.Second),
				)
				loop := search.NewLoop(provider, env.Store, cfg.Search,
					search.WithRetry(resilience.RetryConfig{
						MaxAttempts: cfg.Apollo.Retries + 1,
						OnRetry:     resilience.RetryLogger("apollo", "search_people"),
					}))

				result, err := loop.Run(ctx, req.Query, parsed.Criteria, target)
				if err != nil {
					zap.L().Error("webhook search failed",
						zap.String("query", req.Query), zap.Error(err))
					return
				}
				zap.L().Info("webhook search complete",
					zap.String("query", req.Query),
					zap.Int("found", len(result.Contacts)),
					zap.Bool("partial", result.Partial),
				)
			}()

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "accepted",
				"query":  req.Query,
			})
		})

		mux.HandleFunc("POST /webhook/campaign", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Account string `json:"account"`
				Channel string `json:"channel"`
				Limit   int    `json:"limit"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if req.Account == "" {
				http.Error(w, `{"error":"account is required"}`, http.StatusBadRequest)
				return
			}
			ch := model.Channel(req.Channel)
			stages := workflow.ActionableStages(ch)
			if len(stages) == 0 {
				http.Error(w, `{"error":"unknown channel"}`, http.StatusBadRequest)
				return
			}
			limit := req.Limit
			if limit <= 0 {
				limit = 50
			}

			go func() {
				if err := env.Gate.Rebuild(ctx, req.Account); err != nil {
					zap.L().Error("webhook campaign counter rebuild failed",
						zap.String("account", req.Account), zap.Error(err))
					return
				}
				contacts, err := env.Store.ListDueContacts(ctx, stages, time.Now(), limit)
				if err != nil {
					zap.L().Error("webhook campaign list due failed",
						zap.String("account", req.Account), zap.Error(err))
					return
				}
				scheduler := campaign.NewScheduler(env.Gate, env.Adapters, env.Store, env.Policies, cfg.Campaign)
				result, err := scheduler.RunBatch(ctx, campaign.Batch{
					AccountID: req.Account,
					Channel:   ch,
					Contacts:  contacts,
				})
				if err != nil {
					zap.L().Error("webhook campaign batch failed",
						zap.String("account", req.Account), zap.Error(err))
					return
				}
				zap.L().Info("webhook campaign complete",
					zap.String("account", req.Account),
					zap.Int("sent", result.Sent),
					zap.Int("failed", result.Failed),
					zap.Int("skipped", result.Skipped),
				)
			}()

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "accepted",
				"account": req.Account,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
