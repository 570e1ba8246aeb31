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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"spycats/internal/app"
	"spycats/internal/config"
	"spycats/internal/db"
	"spycats/internal/domain"
	"spycats/internal/engine"
	"spycats/internal/logging"
	"spycats/internal/repo"
	"spycats/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "spycats",
	Short: "Spy Cats agency CLI",
	Long: `Spy Cats keeps records of field agents (spy cats), their missions and mission targets.
- Agents: registered with a breed recognized by TheCatAPI; only the salary changes afterwards.
- Missions: created with 1 to 3 targets, optionally assigned to one agent; completion is one-way.
- Targets: notes and completion can change until the target or its mission is complete.
- Event log: every change is recorded, view it with 'spycats log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	// Workspace .env values fill in variables that are not already set.
	envPath := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading %s: %v\n", envPath, err)
	}
	viper.SetEnvPrefix("SPYCATS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("breeds-api-key")
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
	flags.String("db-driver", "", "database driver (sqlite, postgres)")
	flags.String("db-dsn", "", "database DSN")
	flags.String("breeds-url", "", "breed API endpoint")
	for _, name := range []string{"workspace", "json", "log-level", "log-format", "db-driver", "db-dsn", "breeds-url"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(targetCmd())
	rootCmd.AddCommand(breedsCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := resolveConfig(app.Overrides{Addr: addr, BasePath: basePath})
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			otelCfg, err := telemetry.ConfigFromEnv()
			if err != nil {
				return err
			}
			shutdownTracing, err := telemetry.Setup(ctx, otelCfg)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(sctx); err != nil {
					logger.Warn("tracing shutdown", "error", err)
				}
			}()

			a, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := a.Handler()
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				timeout := cfg.Server.ShutdownTimeout.Duration
				if timeout <= 0 {
					timeout = 5 * time.Second
				}
				sctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				srv.Shutdown(sctx)
			}()
			logger.Info("serving spy cats api",
				"addr", cfg.Server.Addr,
				"base_path", cfg.Server.BasePath,
				"driver", string(a.Dialect),
				"openapi", "/openapi.json",
				"docs", "/docs",
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from spycats.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if viper.GetBool("json") {
					return printJSON(map[string]any{"driver": a.Dialect, "schema_version": a.SchemaVersion})
				}
				fmt.Printf("%s schema at version %d\n", a.Dialect, a.SchemaVersion)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create spycats.yml",
		Long:  "Config lives in spycats.yml in the workspace. Flags and SPYCATS_* environment variables (also read from the workspace .env) override it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configUseDBCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(app.Overrides{})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default spycats.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configUseDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use-db <driver> [dsn]",
		Short: "Record the database driver (and dsn) in the workspace .env",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver := strings.TrimSpace(args[0])
			if _, err := (db.Config{Driver: driver}).Dialect(); err != nil {
				return err
			}
			values := map[string]string{"SPYCATS_DB_DRIVER": driver}
			if len(args) == 2 {
				values["SPYCATS_DB_DSN"] = args[1]
			}
			path := filepath.Join(viper.GetString("workspace"), ".env")
			if err := setEnvValues(path, values); err != nil {
				return err
			}
			fmt.Printf("Set SPYCATS_DB_DRIVER=%s in %s\n", driver, path)
			return nil
		},
	}
	return cmd
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agent",
		Aliases: []string{"cat"},
		Short:   "Manage spy cats",
	}
	cmd.AddCommand(agentListCmd())
	cmd.AddCommand(agentShowCmd())
	cmd.AddCommand(agentCreateCmd())
	cmd.AddCommand(agentSalaryCmd())
	cmd.AddCommand(agentDeleteCmd())
	return cmd
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List spy cats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				agents, err := e.ListAgents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				renderAgents(agents)
				return nil
			})
		},
	}
}

func agentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a spy cat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAgent(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				renderAgents([]domain.Agent{a})
				return nil
			})
		},
	}
}

func agentCreateCmd() *cobra.Command {
	var in engine.AgentInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a spy cat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterAgent(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "agent name")
	cmd.Flags().Float64Var(&in.YearsOfExperience, "experience", 0, "years of experience")
	cmd.Flags().StringVar(&in.Breed, "breed", "", "cat breed (validated against the breed API)")
	cmd.Flags().Float64Var(&in.Salary, "salary", 0, "salary")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("breed")
	return cmd
}

func agentSalaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "salary <id> <amount>",
		Short: "Update a spy cat's salary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			salary, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid salary %q", args[1])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAgentSalary(ctx, id, salary)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func agentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a spy cat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteAgent(ctx, id); err != nil {
					return err
				}
				fmt.Println("Spy cat deleted")
				return nil
			})
		},
	}
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
	}
	cmd.AddCommand(missionListCmd())
	cmd.AddCommand(missionShowCmd())
	cmd.AddCommand(missionCreateCmd())
	cmd.AddCommand(missionCompleteCmd())
	cmd.AddCommand(missionAssignCmd())
	cmd.AddCommand(missionDeleteCmd())
	return cmd
}

func missionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				missions, err := e.ListMissions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Cat", "Complete", "Targets", "Open targets"})
				for _, m := range missions {
					open := 0
					for _, t := range m.Targets {
						if !t.IsComplete {
							open++
						}
					}
					tw.AppendRow(table.Row{m.ID, catLabel(m.CatID), m.IsComplete, len(m.Targets), open})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission and its targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("Mission %d  cat=%s  complete=%t\n", m.ID, catLabel(m.CatID), m.IsComplete)
				renderTargets(m.Targets)
				return nil
			})
		},
	}
}

func missionCreateCmd() *cobra.Command {
	var catID int64
	var targets []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission with 1 to 3 targets",
		Example: `  spycats mission create --target "Viper:Italy" --target "Ghost:Peru:last seen in Lima"
  spycats mission create --cat-id 3 --target "Nightjar:Norway"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.MissionInput{}
			if cmd.Flags().Changed("cat-id") {
				in.CatID = &catID
			}
			for _, raw := range targets {
				t, err := parseTarget(raw)
				if err != nil {
					return err
				}
				in.Targets = append(in.Targets, t)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().Int64Var(&catID, "cat-id", 0, "assign the mission to this spy cat")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "target as name:country[:notes] (repeatable)")
	return cmd
}

func missionCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a mission complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CompleteMission(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func missionAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <mission-id> <cat-id>",
		Short: "Assign a spy cat to a mission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			missionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			catID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AssignAgentToMission(ctx, missionID, catID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func missionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unassigned mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteMission(ctx, id); err != nil {
					return err
				}
				fmt.Println("Mission deleted")
				return nil
			})
		},
	}
}

func targetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Manage mission targets",
	}
	cmd.AddCommand(targetUpdateCmd())
	return cmd
}

func targetUpdateCmd() *cobra.Command {
	var upd engine.TargetUpdate
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a target's notes or mark it complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTarget(ctx, id, upd)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				renderTargets([]domain.Target{t})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&upd.Notes, "notes", "", "replace the notes (empty keeps current notes)")
	cmd.Flags().BoolVar(&upd.IsComplete, "complete", false, "mark the target complete")
	return cmd
}

func breedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breeds",
		Short: "Query the breed API",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recognized breeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				names, err := e.ListBreeds(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(names)
				}
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, fmt.Sprintf("%s/%d", evt.EntityKind, evt.EntityID), evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind (spy_cat, mission, target)")
	cmd.Flags().Int64Var(&f.EntityID, "entity-id", 0, "entity id")
	cmd.Flags().Int64Var(&f.Cursor, "before", 0, "only events with an id below this one")
	return cmd
}

// --- helpers ---

func resolveConfig(o app.Overrides) (*config.Config, error) {
	o.DBDriver = viper.GetString("db-driver")
	o.DBDSN = viper.GetString("db-dsn")
	o.BreedsURL = viper.GetString("breeds-url")
	o.APIKey = viper.GetString("breeds-api-key")
	o.LogLevel = viper.GetString("log-level")
	o.LogFormat = viper.GetString("log-format")
	return app.ResolveConfig(viper.GetString("workspace"), o)
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := resolveConfig(app.Overrides{})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func renderAgents(agents []domain.Agent) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Experience", "Breed", "Salary"})
	for _, a := range agents {
		tw.AppendRow(table.Row{a.ID, a.Name, a.YearsOfExperience, a.Breed, a.Salary})
	}
	tw.Render()
}

func renderTargets(targets []domain.Target) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Mission", "Name", "Country", "Complete", "Notes"})
	for _, t := range targets {
		tw.AppendRow(table.Row{t.ID, t.MissionID, t.Name, t.Country, t.IsComplete, t.Notes})
	}
	tw.Render()
}

func catLabel(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseTarget(raw string) (engine.TargetInput, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return engine.TargetInput{}, fmt.Errorf("target %q must be name:country[:notes]", raw)
	}
	t := engine.TargetInput{Name: strings.TrimSpace(parts[0]), Country: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		t.Notes = parts[2]
	}
	return t, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setEnvValues merges values into the .env file at path, keeping other keys.
func setEnvValues(path string, values map[string]string) error {
	existing, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		existing = map[string]string{}
	}
	for k, v := range values {
		existing[k] = v
	}
	return godotenv.Write(existing, path)
}
