package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"ecosim/internal/ecology"
	"ecosim/internal/storage"
	"ecosim/pkg/ecosim"
)

const (
	runsDir       = "runs"
	exportsDir    = "exports"
	defaultDBPath = "ecosim.db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind *string
	dbPath    *string
	runsDir   *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", defaultDBPath, "sqlite database path"),
		runsDir:   fs.String("runs-dir", runsDir, "run artifacts directory"),
	}
}

func (f clientFlags) open() (*ecosim.Client, error) {
	return ecosim.New(ecosim.Options{
		StoreKind: *f.storeKind,
		DBPath:    *f.dbPath,
		RunsDir:   *f.runsDir,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *cf.storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	height := fs.Int("height", 10, "grid height")
	width := fs.Int("width", 10, "grid width")
	prey := fs.Int("prey", 20, "initial prey count")
	predators := fs.Int("predators", 7, "initial predator count")
	poachers := fs.Int("poachers", 3, "initial poacher count")
	ticks := fs.Int("ticks", 100, "number of ticks to run")
	seed := fs.Int64("seed", 1, "rng seed")
	delayMS := fs.Int("delay-ms", 0, "pause between ticks in milliseconds")
	stopOnSaturation := fs.Bool("stop-on-saturation", false, "stop when an offspring finds no empty cell")
	breedThreshold := fs.Int("breed-threshold", 0, "energy needed to breed (0 uses the default of 200)")
	predatorGain := fs.Int("predator-gain", 0, "energy a predator gains per prey (0 uses the default of 100)")
	poachCost := fs.Int("poach-cost", 0, "energy a poacher spends per cull (0 uses the default of 5; zero cost is not expressible)")
	progress := fs.Bool("progress", false, "print population after every tick")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req := ecosim.RunRequest{
		RunID:            *runID,
		Height:           *height,
		Width:            *width,
		Prey:             *prey,
		Predators:        *predators,
		Poachers:         *poachers,
		Ticks:            *ticks,
		Seed:             *seed,
		StepDelay:        time.Duration(*delayMS) * time.Millisecond,
		StopOnSaturation: *stopOnSaturation,
		Params: ecology.Params{
			BreedThreshold: *breedThreshold,
			PredatorGain:   *predatorGain,
			PoachCost:      *poachCost,
		},
	}
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		if err := overrideFromFlags(&loaded, setFlags, map[string]any{
			"run-id":             *runID,
			"height":             *height,
			"width":              *width,
			"prey":               *prey,
			"predators":          *predators,
			"poachers":           *poachers,
			"ticks":              *ticks,
			"seed":               *seed,
			"delay-ms":           *delayMS,
			"stop-on-saturation": *stopOnSaturation,
			"breed-threshold":    *breedThreshold,
			"predator-gain":      *predatorGain,
			"poach-cost":         *poachCost,
		}); err != nil {
			return err
		}
		req = loaded
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	var printer *progressPrinter
	if *progress && !*jsonOut {
		printer = newProgressPrinter(os.Stdout, req.Ticks)
		req.Progress = printer.Print
	}
	started := time.Now()
	summary, err := client.Run(ctx, req)
	if printer != nil {
		printer.Done()
	}
	if err != nil {
		return err
	}
	log.Printf("run %s finished in %s", summary.RunID, time.Since(started).Round(time.Millisecond))

	if *jsonOut {
		return writeJSON(os.Stdout, runSummaryJSON(summary))
	}
	printRunSummary(os.Stdout, summary)
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path used as the sweep base")
	height := fs.Int("height", 10, "grid height")
	width := fs.Int("width", 10, "grid width")
	prey := fs.Int("prey", 20, "initial prey count")
	predators := fs.Int("predators", 7, "initial predator count")
	poachers := fs.Int("poachers", 3, "initial poacher count")
	ticks := fs.Int("ticks", 100, "number of ticks per run")
	seedsFlag := fs.String("seeds", "", "comma separated seeds or an inclusive range like 1-10")
	workers := fs.Int("workers", 4, "concurrent runs")
	stopOnSaturation := fs.Bool("stop-on-saturation", false, "stop a run when an offspring finds no empty cell")
	jsonOut := fs.Bool("json", false, "emit sweep summary as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	seeds, err := parseSeeds(*seedsFlag)
	if err != nil {
		return err
	}

	base := ecosim.RunRequest{
		Height:           *height,
		Width:            *width,
		Prey:             *prey,
		Predators:        *predators,
		Poachers:         *poachers,
		Ticks:            *ticks,
		StopOnSaturation: *stopOnSaturation,
	}
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		if err := overrideFromFlags(&loaded, setFlags, map[string]any{
			"height":             *height,
			"width":              *width,
			"prey":               *prey,
			"predators":          *predators,
			"poachers":           *poachers,
			"ticks":              *ticks,
			"stop-on-saturation": *stopOnSaturation,
		}); err != nil {
			return err
		}
		base = loaded
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Sweep(ctx, ecosim.SweepRequest{Base: base, Seeds: seeds, Workers: *workers})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, result.Summary)
	}
	printSweepSummary(os.Stdout, result)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, ecosim.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, runItemsJSON(items))
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	printRuns(os.Stdout, items, time.Now())
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	limit := fs.Int("limit", 0, "max samples to print (0 prints all)")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("history requires --run-id or --latest")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.History(ctx, ecosim.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, history)
	}
	for _, s := range history {
		fmt.Printf("tick=%d prey=%d predators=%d poachers=%d\n", s.Tick, s.Prey, s.Predators, s.Poachers)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, ecosim.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.DeleteRun(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("deleted run_id=%s\n", *runID)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (defaults to :$PORT, then :8000)")
	height := fs.Int("height", 5, "grid height")
	width := fs.Int("width", 5, "grid width")
	prey := fs.Int("prey", 10, "initial prey count")
	predators := fs.Int("predators", 2, "initial predator count")
	poachers := fs.Int("poachers", 1, "initial poacher count")
	seed := fs.Int64("seed", 1, "rng seed")
	intervalMS := fs.Int("interval-ms", 500, "tick interval at speed 1 in milliseconds")
	startPaused := fs.Bool("paused", false, "start with the simulation paused")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listen := resolveAddr(*addr, os.Getenv("PORT"))
	client, err := ecosim.New(ecosim.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	log.Printf("serving %dx%d grid on %s", *height, *width, listen)
	return client.Serve(ctx, ecosim.ServeRequest{
		Addr:         listen,
		Height:       *height,
		Width:        *width,
		Prey:         *prey,
		Predators:    *predators,
		Poachers:     *poachers,
		Seed:         *seed,
		BaseInterval: time.Duration(*intervalMS) * time.Millisecond,
		StartPaused:  *startPaused,
	})
}

func resolveAddr(addr, port string) string {
	if addr != "" {
		return addr
	}
	if port == "" {
		port = "8000"
	}
	return ":" + port
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	commands := []string{"init", "run", "sweep", "runs", "history", "export", "delete", "serve"}
	return fmt.Errorf("%s\nusage: ecosimctl <%s> [flags]", msg, strings.Join(commands, "|"))
}
