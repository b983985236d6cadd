// Command awemaster runs an Accelerated Weighted Ensemble master process:
// it loads a run configuration, rebuilds the System and worker transport
// it describes, and drives the engine's iteration loop to completion or
// until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ccl-awe/awe-go/awe"
	"github.com/ccl-awe/awe-go/awe/sinks"
	"github.com/ccl-awe/awe-go/awe/statslog"
	"github.com/ccl-awe/awe-go/awe/store"
	"github.com/ccl-awe/awe-go/awe/topology"
	"github.com/ccl-awe/awe-go/awe/transport/procpool"
)

// runConfig mirrors the configuration knobs enumerated in SPEC_FULL.md §6.
type runConfig struct {
	RunID                 string  `yaml:"run_id"`
	TopologyFile          string  `yaml:"topology_file"`
	CellsFile             string  `yaml:"cells_file"`
	WalkersFile           string  `yaml:"walkers_file"`
	Iterations            int     `yaml:"iterations"`
	TargetWalkersPerCell  int     `yaml:"target_walkers_per_cell"`
	Restarts              float64 `yaml:"restarts"`
	MaxReps               int     `yaml:"maxreps"`
	CheckpointPeriod      int     `yaml:"checkpoint_period"`
	WaitTimeoutSeconds     int     `yaml:"wait_timeout"`
	CheckpointPath        string  `yaml:"checkpoint_path"`
	OutputDir             string  `yaml:"output_dir"`
	StoreDSN              string  `yaml:"store_dsn"`
	Transport             struct {
		Executable string `yaml:"executable"`
		BaseDir    string `yaml:"base_dir"`
		Workers    int    `yaml:"workers"`
	} `yaml:"transport"`
}

func loadConfig(path string) (runConfig, error) {
	var cfg runConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Restarts == 0 {
		cfg.Restarts = math.Inf(1)
	}
	if cfg.MaxReps == 0 {
		cfg.MaxReps = -1
	}
	if cfg.WaitTimeoutSeconds == 0 {
		cfg.WaitTimeoutSeconds = 10
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "debug"
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.CellsFile == "" {
		return cfg, fmt.Errorf("cells_file is required")
	}
	if cfg.WalkersFile == "" {
		return cfg, fmt.Errorf("walkers_file is required")
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "awe.yaml", "path to the run configuration file")
	flag.Parse()

	fmt.Println("AWE Master")
	fmt.Println("==========")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	topologyBytes, err := os.ReadFile(cfg.TopologyFile)
	if err != nil {
		log.Fatalf("read topology: %v", err)
	}
	top, err := topology.Parse(topologyBytes)
	if err != nil {
		log.Fatalf("parse topology: %v", err)
	}
	fmt.Printf("loaded topology: %d atoms\n", top.NAtoms())

	pool, err := procpool.New(procpool.Config{
		Executable: cfg.Transport.Executable,
		BaseDir:    cfg.Transport.BaseDir,
		Workers:    cfg.Transport.Workers,
	})
	if err != nil {
		log.Fatalf("create worker pool: %v", err)
	}

	var logStore store.Store
	if cfg.StoreDSN != "" {
		logStore, err = store.NewSQLiteStore(cfg.StoreDSN)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
	} else {
		logStore = store.NewMemoryStore()
	}
	defer logStore.Close()

	weightSink, err := sinks.NewWalkerWeightSink(cfg.OutputDir + "/walker-weights.csv")
	if err != nil {
		log.Fatalf("open weight sink: %v", err)
	}
	defer weightSink.Close()

	historySink, err := sinks.NewWalkerHistorySink(cfg.OutputDir + "/walker-history.csv")
	if err != nil {
		log.Fatalf("open history sink: %v", err)
	}
	defer historySink.Close()

	resampleRNG := rand.New(rand.NewSource(time.Now().UnixNano()))
	oneColor := awe.NewOneColorResampler(cfg.TargetWalkersPerCell, resampleRNG)
	oneColor.SetHistorySink(historySink)
	resampler := awe.NewSaveWeightsResampler(oneColor, weightSink)

	statsLogger, err := statslog.NewFileStatsLogger(cfg.OutputDir + "/task_stats.log.gz")
	if err != nil {
		log.Fatalf("open stats logger: %v", err)
	}
	defer statsLogger.Close()

	sys := awe.NewSystem(topologyBytes)
	ncells, err := loadCells(sys, cfg.CellsFile)
	if err != nil {
		log.Fatalf("load cells: %v", err)
	}
	nwalkers, err := loadWalkers(sys, cfg.WalkersFile)
	if err != nil {
		log.Fatalf("load walkers: %v", err)
	}
	fmt.Printf("loaded initial system: %d cells, %d walkers\n", ncells, nwalkers)

	engine, err := awe.NewEngine(cfg.RunID, sys, top, pool, resampler, logStore,
		awe.WithIterations(cfg.Iterations),
		awe.WithTargetWalkersPerCell(cfg.TargetWalkersPerCell),
		awe.WithMaxRestarts(cfg.Restarts),
		awe.WithMaxReps(cfg.MaxReps),
		awe.WithCheckpointPeriod(cfg.CheckpointPeriod),
		awe.WithWaitTimeout(time.Duration(cfg.WaitTimeoutSeconds)*time.Second),
		awe.WithCheckpointPath(cfg.CheckpointPath),
	)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	engine.SetStatsLogger(statsLogger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		fmt.Println("interrupt received, finishing the current iteration and checkpointing")
		engine.Stop()
	}()

	if err := engine.Run(context.Background()); err != nil && !errors.Is(err, awe.ErrEngineStopped) {
		log.Fatalf("run: %v", err)
	}

	fmt.Printf("completed %d iterations\n", engine.Iteration())
}
