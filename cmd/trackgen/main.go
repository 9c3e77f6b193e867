package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/runcourse/trackgen/internal/config"
	"github.com/runcourse/trackgen/internal/core/event"
	coresys "github.com/runcourse/trackgen/internal/core/system"
	"github.com/runcourse/trackgen/internal/data"
	"github.com/runcourse/trackgen/internal/metrics"
	"github.com/runcourse/trackgen/internal/persist"
	"github.com/runcourse/trackgen/internal/scripting"
	"github.com/runcourse/trackgen/internal/system"
	"github.com/runcourse/trackgen/internal/track"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(course string, seed int64) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             trackgen  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      endless course streaming engine      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mcourse:\033[0m %s \033[90m(seed: %d)\033[0m\n\n", course, seed)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := strconv.Itoa(count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main course logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/trackgen.toml"
	explicit := false
	if p := os.Getenv("TRACKGEN_CONFIG"); p != "" {
		cfgPath = p
		explicit = true
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Load course data
	courses, err := data.LoadCourseTable(cfg.Data.Courses)
	if err != nil {
		return fmt.Errorf("load courses: %w", err)
	}
	grades, err := data.LoadGradeTable(cfg.Data.Grades)
	if err != nil {
		return fmt.Errorf("load grades: %w", err)
	}

	seed := cfg.Course.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	course, err := pickCourse(courses, cfg.Course.ID, rng)
	if err != nil {
		return err
	}

	printBanner(course.Name, seed)

	printSection("data")
	printStat("courses", courses.Count())
	printStat("grades", grades.Count())
	printStat("partitions", len(course.Parts))
	printOK("digest " + courses.Digest()[:16])
	fmt.Println()

	// 4. Scripting engine
	printSection("scripting")
	engine, err := scripting.NewEngine(cfg.Data.Scripts, log)
	if err != nil {
		return fmt.Errorf("scripting engine: %w", err)
	}
	defer engine.Close()
	if course.Rules != "" {
		if !engine.HasRules(course.Rules) {
			return fmt.Errorf("course %q wants rule set %q, none loaded", course.Name, course.Rules)
		}
		printOK("rule set " + course.Rules)
	} else {
		printOK("no rule set, plain draws")
	}
	fmt.Println()

	// 5. Optional run journal
	bus := event.NewBus()
	var journal *system.JournalSystem
	if cfg.Database.DSN != "" {
		printSection("database")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool, log.Named("migrate")); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		fmt.Println()

		journal = system.NewJournalSystem(persist.NewRunRepo(db), bus, seed, cfg.Database.WriteTimeout, log.Named("journal"))
	}

	// 6. Build and start the course
	player := system.NewPlayerSystem(cfg.Runner.Speed)
	scene := newSceneStub(course, log.Named("scene"))
	c, err := track.NewCourse(track.Options{
		Course:    course,
		Grades:    grades,
		Digest:    courses.Digest(),
		Rules:     engine,
		Instancer: scene,
		Mover:     scene,
		Player:    player,
		Rand:      rng,
		Bus:       bus,
		Log:       log,
		Params:    track.ParamsFromConfig(cfg.Course),
	})
	if err != nil {
		return fmt.Errorf("new course: %w", err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("start course: %w", err)
	}

	// 7. Create systems and register with runner
	collector := metrics.NewCollector()
	runner := coresys.NewRunner()
	runner.Register(player)
	runner.Register(system.NewGenerationSystem(c, runner, log))
	runner.Register(system.NewReclamationSystem(c, runner, cfg.Course.ReclaimEvery))
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewMetricsSystem(c, collector, bus))
	if journal != nil {
		runner.Register(journal)
	}

	// 8. Start game loop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	printSection("ready")
	if addr := cfg.Metrics.BindAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		printReady("metrics on " + addr)
	}
	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Course.TickRate))
	fmt.Println()

	g.Go(func() error {
		return gameLoop(gctx, runner, c, collector, cfg.Course.TickRate)
	})
	loopErr := g.Wait()

	// 9. Shut down: deliver the close event and flush the journal
	c.Close()
	bus.SwapBuffers()
	bus.DispatchAll()
	if journal != nil {
		journal.Flush()
	}

	snap := c.Snapshot()
	log.Info("course stopped",
		zap.Int("created", snap.Created),
		zap.Int("reclaimed", snap.Reclaimed),
		zap.String("grade", snap.Grade),
		zap.Int("instances", scene.Instances()))
	return loopErr
}

func gameLoop(ctx context.Context, runner *coresys.Runner, c *track.Course, collector *metrics.Collector, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runner.Tick(tick)
			collector.ObserveTick(time.Since(start))
			if runner.Halted() {
				if err := c.Err(); err != nil {
					return fmt.Errorf("course failed: %w", err)
				}
				return errors.New("game loop halted")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// pickCourse resolves the configured course: a numeric id, a name, or a
// random pick when empty.
func pickCourse(t *data.CourseTable, id string, rng *rand.Rand) (*data.Course, error) {
	if id == "" {
		if c := t.Random(rng); c != nil {
			return c, nil
		}
		return nil, errors.New("no courses defined")
	}
	if n, err := strconv.ParseInt(id, 10, 32); err == nil {
		if c := t.Get(int32(n)); c != nil {
			return c, nil
		}
	}
	if c := t.ByName(id); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("course %q not found", id)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
