package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leadline/internal/app"
	"leadline/internal/config"
	"leadline/internal/db"
	"leadline/internal/domain"
	"leadline/internal/engine"
	"leadline/internal/events"
	"leadline/internal/kanban"
	"leadline/internal/migrate"
	"leadline/internal/repo"
	"leadline/internal/server"
	leadlinesdk "leadline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Leadline CLI",
	Long: `Leadline drives a lead funnel board against the Leadline HTTP API.
- Board: one column per funnel stage, paged from the API and merged without duplicates.
- Moves: 'll board move' applies the change locally first and reverts it if the API refuses.
- AI toggle: pause or resume automated handling per phone number.
- Workspace: a .leadline directory holding the config, local notes and the activity journal.
- Dev backend: 'll serve' runs a local API on sqlite, 'll seed' fills it with demo leads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger(viper.GetString("log-level")))
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEADLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("api-url", "", "API base URL (defaults to config api.base_url)")
	flags.String("token", "", "bearer token for the API")
	flags.String("variant", config.VariantContacts, "funnel variant used when no config exists (contacts|credit)")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	for _, name := range []string{"workspace", "json", "actor-id", "api-url", "token", "variant", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(aiCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func aiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai <phone> on|off",
		Short: "Pause or resume automated handling for a phone number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var active bool
			switch strings.ToLower(args[1]) {
			case "on", "resume", "true":
				active = true
			case "off", "pause", "false":
				active = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if err := s.ai.Set(ctx, args[0], active); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"phone": args[0], "active": active})
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config sets the funnel stages, the API endpoint, page size, search debounce and phone region. A leadline.yml in the workspace wins over the copy stored in the DB.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default leadline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("variant"))), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				out, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Activity journal",
		Long:  "Everything this workspace did: optimistic moves, commits, reverts, AI toggles and dev backend writes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var follow bool
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if !follow {
					if viper.GetBool("json") {
						return printJSON(items)
					}
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
					for _, evt := range items {
						tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, eventEntity(evt), evt.ActorID, evt.Payload})
					}
					tw.Render()
					return nil
				}
				var cursor int64
				for i := len(items) - 1; i >= 0; i-- {
					printEvent(items[i])
					cursor = items[i].ID
				}
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					next, err := r.EventsAfter(ctx, 100, cursor)
					if err != nil {
						return err
					}
					for _, evt := range next {
						cursor = evt.ID
						if matchesEvent(evt, evtType, entityKind, entityID) {
							printEvent(evt)
						}
					}
				}
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events")
	return cmd
}

func eventEntity(evt domain.Event) string {
	if evt.EntityID == "" {
		return evt.EntityKind
	}
	return evt.EntityKind + ":" + evt.EntityID
}

func matchesEvent(evt domain.Event, evtType, entityKind, entityID string) bool {
	return (evtType == "" || evt.Type == evtType) &&
		(entityKind == "" || evt.EntityKind == entityKind) &&
		(entityID == "" || evt.EntityID == entityID)
}

func printEvent(evt domain.Event) {
	if viper.GetBool("json") {
		_ = json.NewEncoder(os.Stdout).Encode(evt)
		return
	}
	fmt.Printf("%d  %s  %-20s %-24s %s  %s\n", evt.ID, evt.TS, evt.Type, eventEntity(evt), evt.ActorID, evt.Payload)
}

func serveCmd() *cobra.Command {
	var addr, basePath, secret string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local dev API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				if secret == "" {
					secret = viper.GetString("jwt-secret")
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
					Logger:   slog.Default(),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Leadline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config server.base_path)")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "HS256 secret for bearer tokens (env LEADLINE_JWT_SECRET); empty disables auth")
	_ = viper.BindEnv("jwt-secret")
	return cmd
}

func seedCmd() *cobra.Command {
	var leads int
	var seed int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the local dev backend with demo leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Seed(ctx, engine.SeedOptions{Leads: leads, Seed: seed, ActorID: viper.GetString("actor-id")})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Seeded %d leads, %d conversations (%d messages), %d simulations\n", res.Leads, res.Conversations, res.Messages, res.Simulations)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&leads, "leads", 60, "number of leads")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = random)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "DEV ONLY: mint a bearer token for the local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = viper.GetString("jwt-secret")
			}
			token, err := server.SignToken(secret, viper.GetString("actor-id"), ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_in": int(ttl / time.Second)})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "HS256 secret (env LEADLINE_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", server.DefaultTokenTTL, "token lifetime")
	_ = viper.BindEnv("jwt-secret")
	return cmd
}

// --- helpers ---

// session wires the board core to the remote API for one command.
type session struct {
	cfg    *config.Config
	repo   repo.Repo
	client *leadlinesdk.Client
	store  *kanban.Store
	ctrl   *kanban.Controller
	ai     *kanban.AIToggle
	logger *slog.Logger
}

func withSession(ctx context.Context, fn func(context.Context, *session) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), viper.GetString("variant"), r)
		if err != nil {
			return err
		}
		baseURL := viper.GetString("api-url")
		if baseURL == "" {
			baseURL = cfg.API.BaseURL
		}
		client := leadlinesdk.New(baseURL, viper.GetString("token"))
		client.Timeout = cfg.API.Timeout
		logger := slog.Default()
		journal := events.Journal{Writer: events.Writer{DB: r.DB}, ActorID: viper.GetString("actor-id")}
		notifier := newColorNotifier(os.Stderr)
		store := kanban.NewStore(client, cfg, logger)
		s := &session{
			cfg:    cfg,
			repo:   r,
			client: client,
			store:  store,
			ctrl:   kanban.NewController(store, client, notifier, journal, logger),
			ai:     kanban.NewAIToggle(store, client, notifier, journal, cfg.Phone.DefaultRegion, logger),
			logger: logger,
		}
		return fn(ctx, s)
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), viper.GetString("variant"), r)
		if err != nil {
			return err
		}
		return fn(ctx, engine.New(r.DB, cfg))
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
