// Package wardend parses daemon flags and runs governance operations against
// a store.
package wardend

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emberwake/warden/internal/audit"
	"github.com/emberwake/warden/internal/auth/grant"
	"github.com/emberwake/warden/internal/drift"
	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/governance"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan/factory"
	"github.com/emberwake/warden/internal/platform/config"
	"github.com/emberwake/warden/internal/storage/sqlite"
	"github.com/emberwake/warden/internal/transaction"
)

// Config holds wardend configuration.
type Config struct {
	DBPath   string `env:"WARDEN_DB_PATH" envDefault:"warden.db"`
	AuditCap int    `env:"WARDEN_AUDIT_CAP" envDefault:"1000"`
	Mode     string `env:"WARDEN_GOVERNANCE_MODE" envDefault:"strict"`
	LuaDir   string `env:"WARDEN_LUA_FACTORY_DIR"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, []string, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, nil, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database")
	fs.IntVar(&cfg.AuditCap, "audit-cap", cfg.AuditCap, "Retained audit events per entity")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Boundary mode: strict or permissive")
	fs.StringVar(&cfg.LuaDir, "lua-dir", cfg.LuaDir, "Directory of Lua factory scripts")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// runtime is the wired engine over one opened store.
type runtime struct {
	store       *sqlite.Store
	trail       *audit.Trail
	authority   *governance.Authority
	locks       *governance.Locks
	safe        *governance.SafeMutator
	detector    *drift.Detector
	coordinator *transaction.Coordinator
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

func wire(cfg Config) (*runtime, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	grants, err := grant.LoadConfigFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	trail := audit.New(store, audit.WithCap(cfg.AuditCap), audit.WithGrants(grants))

	interceptor := governance.NewInterceptor(store, governance.ParseMode(cfg.Mode), trail)
	authority := governance.NewAuthority(store, interceptor)
	locks := governance.NewLocks()
	safe := governance.NewSafeMutator(authority, store, locks, trail)
	detector := drift.NewDetector(store, authority, trail)

	registry := factory.NewRegistry(factory.ItemFactory{}, factory.VehicleFactory{})
	if cfg.LuaDir != "" {
		if err := registerLuaFactories(registry, cfg.LuaDir); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	coordinator := transaction.NewCoordinator(store, safe, authority, registry, trail)

	return &runtime{
		store:       store,
		trail:       trail,
		authority:   authority,
		locks:       locks,
		safe:        safe,
		detector:    detector,
		coordinator: coordinator,
	}, nil
}

// registerLuaFactories loads every .lua file in dir as a factory whose item
// kind is the file name without extension.
func registerLuaFactories(registry *factory.Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read lua factory dir: %w", err)
	}
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".lua") {
			continue
		}
		source, err := os.ReadFile(filepath.Join(dir, dirEntry.Name()))
		if err != nil {
			return fmt.Errorf("read lua factory %s: %w", dirEntry.Name(), err)
		}
		kind := strings.TrimSuffix(dirEntry.Name(), ".lua")
		registry.Register(factory.NewLuaFactory(kind, string(source)))
	}
	return nil
}

// Run dispatches one subcommand against the configured store.
func Run(ctx context.Context, out io.Writer, cfg Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: wardend [flags] <seed-demo|purchase|drift-scan|timeline|summary|clear-trail>")
	}

	rt, err := wire(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch args[0] {
	case "seed-demo":
		return runSeedDemo(ctx, out, rt)
	case "purchase":
		return runPurchase(ctx, out, rt, args[1:])
	case "drift-scan":
		return runDriftScan(ctx, out, rt, args[1:])
	case "timeline":
		return runTimeline(ctx, out, rt, args[1:])
	case "summary":
		return runSummary(ctx, out, rt, args[1:])
	case "clear-trail":
		return runClearTrail(ctx, out, rt, args[1:])
	}
	return fmt.Errorf("unknown subcommand %q", args[0])
}

// runSeedDemo creates a demo character with a starting balance through the
// governed path so its drift baseline is sealed from the start.
func runSeedDemo(ctx context.Context, out io.Writer, rt *runtime) error {
	entityID, err := rt.store.Seed(ctx, entity.Entity{
		Kind:         entity.KindCharacter,
		Name:         "Demo Pilot",
		ControllerID: "demo-user",
		Fields: map[string]any{
			entity.NamespaceSystem: map[string]any{"credits": 500.0},
		},
	})
	if err != nil {
		return err
	}
	if err := rt.authority.RecordDriftBaseline(ctx, entityID, "wardend:seed-demo"); err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded entity %s with 500 credits\n", entityID)
	return nil
}

func runPurchase(ctx context.Context, out io.Writer, rt *runtime, args []string) error {
	fs := flag.NewFlagSet("purchase", flag.ContinueOnError)
	entityID := fs.String("entity", "", "Purchaser entity id")
	actorID := fs.String("actor", "", "Acting user id")
	kind := fs.String("kind", "item", "Line item kind")
	name := fs.String("name", "", "Item name or vehicle model")
	cost := fs.Float64("cost", 0, "Item cost in credits")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spec := map[string]any{"name": *name}
	if *kind == "vehicle" {
		spec = map[string]any{"model": *name}
	}
	outcome := rt.coordinator.Execute(ctx, transaction.Request{
		PurchaserID: *entityID,
		ActorID:     *actorID,
		Source:      "wardend:purchase",
		LineItems: []ledger.LineItem{
			{Kind: *kind, Cost: *cost, Spec: spec},
		},
	})
	if outcome.Err != nil {
		return fmt.Errorf("transaction %s failed: %w", outcome.TransactionID, outcome.Err)
	}
	fmt.Fprintf(out, "transaction %s completed, total %.2f\n", outcome.TransactionID, outcome.Total)
	for tempID, realID := range outcome.CreatedIDs {
		fmt.Fprintf(out, "created %s -> %s\n", tempID, realID)
	}
	return nil
}

func runDriftScan(ctx context.Context, out io.Writer, rt *runtime, args []string) error {
	fs := flag.NewFlagSet("drift-scan", flag.ContinueOnError)
	entityID := fs.String("entity", "", "Entity id to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	report, err := rt.detector.CheckDrift(ctx, *entityID, "wardend:drift-scan")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "entity %s: %s\n", report.EntityID, report.Reason)
	if report.IsDrift {
		fmt.Fprintf(out, "expected %s\nactual   %s\n", report.Expected, report.Actual)
	}
	return nil
}

func runTimeline(ctx context.Context, out io.Writer, rt *runtime, args []string) error {
	fs := flag.NewFlagSet("timeline", flag.ContinueOnError)
	entityID := fs.String("entity", "", "Entity id")
	filter := fs.String("filter", "", "AIP-160 filter expression")
	if err := fs.Parse(args); err != nil {
		return err
	}
	events, err := rt.trail.Timeline(ctx, *entityID, *filter)
	if err != nil {
		return err
	}
	for _, evt := range events {
		fmt.Fprintf(out, "%s %s %s source=%s actor=%s\n",
			evt.Timestamp.Format("2006-01-02T15:04:05Z"), evt.Severity, evt.EventType, evt.Source, evt.ActorID)
	}
	return nil
}

func runSummary(ctx context.Context, out io.Writer, rt *runtime, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	entityID := fs.String("entity", "", "Entity id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	summary, err := rt.trail.GetSummary(ctx, *entityID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "events: %d\n", summary.Total)
	for _, eventType := range summary.TopEventTypes() {
		fmt.Fprintf(out, "  %s: %d\n", eventType, summary.ByType[eventType])
	}
	return nil
}

func runClearTrail(ctx context.Context, out io.Writer, rt *runtime, args []string) error {
	fs := flag.NewFlagSet("clear-trail", flag.ContinueOnError)
	entityID := fs.String("entity", "", "Entity id")
	token := fs.String("grant", "", "Operator grant token")
	operator := fs.String("operator", "", "Operator id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := rt.trail.ClearTrail(ctx, *entityID, *token, *operator); err != nil {
		return err
	}
	fmt.Fprintf(out, "audit trail cleared for %s\n", *entityID)
	return nil
}
