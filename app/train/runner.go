package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/checkpoints"
	"github.com/tsawler/vrd-classifier/dataset"
	"github.com/tsawler/vrd-classifier/layers"
	"github.com/tsawler/vrd-classifier/optimizer"
	"github.com/tsawler/vrd-classifier/runlog"
	"github.com/tsawler/vrd-classifier/training"
	"go.uber.org/zap"
)

const defaultEpochs = 30

type runner struct {
	args   args
	config training.SolverConfig
	logger *runlog.Logger
	out    io.Writer
	rng    *rand.Rand

	geometry []int
	model    *layers.Sequential
	opt      optimizer.Optimizer

	train    *dataset.VRD
	trainSrc *training.DataLoader
	evals    []training.DataSource
}

// newRunner resolves the solver configuration and opens the run log
func newRunner(a args, stdout io.Writer) (*runner, error) {
	config, err := solverConfig(a)
	if err != nil {
		return nil, err
	}

	seed := a.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	name := runlog.RunName(time.Now(), a.TrainSize, config.NumEpochs, a.LR, a.Geometry)
	logger, err := runlog.New(runlog.Options{
		LogFile:  a.LogFile,
		OutDir:   a.OutDir,
		Name:     name,
		NoPrefix: a.NoPrefix,
		Stdout:   stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("starting run",
		zap.String("name", name),
		zap.Strings("argv", os.Args),
		zap.Int("pid", os.Getpid()),
		zap.Int64("seed", seed),
		zap.String("log", logger.Path()))

	return &runner{
		args:   a,
		config: config,
		logger: logger,
		out:    logger.Writer(),
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// solverConfig layers the config file and explicit flags over the defaults
func solverConfig(a args) (training.SolverConfig, error) {
	config := training.DefaultSolverConfig()
	config.NumEpochs = defaultEpochs
	if a.Config != "" {
		var err error
		if config, err = training.LoadSolverConfigFile(a.Config); err != nil {
			return config, err
		}
	}
	if a.Epochs != nil {
		config.NumEpochs = *a.Epochs
	}
	if a.PrintEvery != nil {
		config.PrintEvery = *a.PrintEvery
	}
	if a.TestEvery != nil {
		config.TestEvery = *a.TestEvery
	}
	if a.CPU {
		config.Cuda = false
	}
	if a.Policy != "" {
		config.SchedulerPolicy = training.SchedulerPolicy(a.Policy)
	}
	return config, config.Validate()
}

func (r *runner) close() {
	if err := r.logger.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close log:", err)
	}
}

// execute runs training and closes the log on every path. Failures are
// logged before the log is closed.
func (r *runner) execute() error {
	err := r.run()
	if err != nil {
		r.logger.Error("training failed", zap.Error(err))
	}
	r.close()
	return err
}

func (r *runner) run() error {
	r.logger.Info("init")
	r.logDevice()
	if err := r.setupModel(); err != nil {
		return err
	}
	r.logger.Info("initializing datasets")
	if err := r.setupData(); err != nil {
		return err
	}
	solver, err := r.setupSolver()
	if err != nil {
		return err
	}

	r.logger.Info("training")
	result, err := solver.Run(r.trainSrc, r.evals...)
	if err != nil {
		return err
	}

	if err := r.summarize(solver.Evaluator()); err != nil {
		return err
	}
	if r.args.EndSave {
		return r.saveFinal(result)
	}
	return nil
}

// logDevice records the CPU the model runs on. The cuda option is passed to
// the solver as a hint only.
func (r *runner) logDevice() {
	r.logger.Info("device",
		zap.Bool("cuda_requested", r.config.Cuda),
		zap.String("cpu", cpuid.CPU.BrandName),
		zap.Int("physical_cores", cpuid.CPU.PhysicalCores),
		zap.Int("logical_cores", cpuid.CPU.LogicalCores),
		zap.Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)),
		zap.Bool("avx512", cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ)))
}

func (r *runner) setupModel() error {
	geometry := r.args.Geometry
	var loaded *checkpoints.Checkpoint
	if r.args.Load != "" {
		r.logger.Info("loading model", zap.String("path", r.args.Load))
		c, err := checkpoints.Load(r.args.Load)
		if err != nil {
			return err
		}
		if c.Metadata.Geometry != "" && c.Metadata.Geometry != geometry {
			r.logger.Warn("using checkpoint geometry",
				zap.String("flag", geometry),
				zap.String("checkpoint", c.Metadata.Geometry))
			geometry = c.Metadata.Geometry
			r.args.Geometry = geometry
		}
		loaded = c
	}

	widths, err := layers.ParseGeometry(geometry)
	if err != nil {
		return errors.Wrap(err, "geometry")
	}
	r.logger.Info("building model", zap.Ints("geometry", widths))
	model, err := layers.BuildMLP(widths, r.rng)
	if err != nil {
		return err
	}
	if loaded != nil {
		if err := loaded.Restore(model); err != nil {
			return err
		}
	} else if r.args.SaveInit != "" {
		r.logger.Info("saving initialized model", zap.String("path", r.args.SaveInit))
		if err := checkpoints.Save(checkpoints.NewCheckpoint(model, geometry, checkpoints.TrainingState{LearningRate: r.args.LR}), r.args.SaveInit); err != nil {
			return err
		}
	}

	r.geometry = widths
	r.model = model
	return nil
}

// checkClasses rejects a split whose labels do not fit the model output
func (r *runner) checkClasses(d *dataset.VRD) error {
	out := r.geometry[len(r.geometry)-1]
	if n := d.NumClasses(); n > out {
		return errors.Errorf("geometry output width %d is too small for %d predicate classes in %s", out, n, d.Name())
	}
	return nil
}

func (r *runner) setupData() error {
	train, err := dataset.Load(r.args.Data, "train")
	if err != nil {
		return err
	}
	if train.FeatureDim() != r.geometry[0] {
		return errors.Errorf("geometry input width %d does not match %d dataset features", r.geometry[0], train.FeatureDim())
	}
	if err := r.checkClasses(train); err != nil {
		return err
	}
	r.train = train
	r.logger.Info("loaded split", zap.Stringer("train", train))

	var trainSet training.Dataset = train
	if r.args.TrainSize > 0 {
		if trainSet, err = training.NewSubsetDataset(train, r.args.TrainSize); err != nil {
			return err
		}
	}
	r.trainSrc = training.NewDataLoader(trainSet, r.args.BatchSize, true, r.rng)

	if r.args.NoVal {
		return nil
	}
	test, err := dataset.Load(r.args.Data, "test")
	if err != nil {
		return err
	}
	r.logger.Info("loaded split", zap.Stringer("test", test))
	if err := r.checkClasses(test); err != nil {
		return err
	}

	var testSets []training.Dataset
	if r.args.NoSplitZS {
		testSets = append(testSets, test)
	} else {
		seen, zeroShot := dataset.NewSplitter(train, r.args.TrainSize).Split(test)
		r.logger.Info("split test set",
			zap.Int(dataset.SeenName, seen.Len()),
			zap.Int(dataset.ZeroShotName, zeroShot.Len()))
		testSets = append(testSets, seen, zeroShot)
	}

	shuffle := false
	if r.args.Val > 0 {
		if testSets[0], err = training.NewFractionDataset(testSets[0], r.args.Val); err != nil {
			return err
		}
		shuffle = true
	}
	for i, set := range testSets {
		r.evals = append(r.evals, training.NewDataLoader(set, r.args.TestBatch, shuffle && i == 0, r.rng))
	}
	return nil
}

func (r *runner) setupSolver() (*training.Solver, error) {
	fmt.Fprintln(r.out)
	layers.PrintSummary(r.out, "Sequential", r.model, r.geometry[0])

	r.logger.Info("building optimizer", zap.String("type", r.args.Optim))
	opt, err := optimizer.New(r.args.Optim, r.args.LR, r.model.Parameters())
	if err != nil {
		return nil, err
	}
	r.opt = opt

	var opts []training.SolverOption
	if r.args.Sched {
		r.logger.Info("building scheduler", zap.String("type", r.args.SchedType))
		scheduler, err := training.NewScheduler(r.args.SchedType, opt, r.args.Patience, r.trainSrc.Len(), r.config.NumEpochs)
		if err != nil {
			return nil, err
		}
		if plateau, ok := scheduler.(*training.ReduceLROnPlateauScheduler); ok {
			plateau.OnReduce = func(step int, oldLR, newLR float64) {
				r.logger.Info("reducing learning rate",
					zap.Int("step", step),
					zap.Float64("from", oldLR),
					zap.Float64("to", newLR))
			}
		}
		opts = append(opts, training.WithScheduler(scheduler))
	}
	opts = append(opts, training.WithReporter(training.NewReporter(r.out)))

	r.logger.Info("building solver")
	objective := training.NewClassifierObjective(r.model, training.NewCrossEntropyLoss("mean"), opt)
	return training.NewSolver(objective, r.config, opts...), nil
}

// summarize prints a confusion summary for every evaluation source
func (r *runner) summarize(evaluator *training.Evaluator) error {
	numClasses := r.geometry[len(r.geometry)-1]
	for _, src := range r.evals {
		if src.Len() == 0 {
			continue
		}
		cm, err := evaluator.Confusion(src, numClasses)
		if err != nil {
			return err
		}
		cm.WriteSummary(r.out, training.SourceName(src))
	}
	return nil
}

func (r *runner) saveFinal(result *training.RunResult) error {
	state := checkpoints.TrainingState{
		Epoch:        result.State.Epoch,
		Step:         result.State.Iteration,
		TotalSteps:   result.State.Total,
		LearningRate: r.opt.GetLR(),
	}
	if n := len(result.History); n > 0 {
		state.Loss = result.History[n-1]
	}

	c := checkpoints.NewCheckpoint(r.model, r.args.Geometry, state)
	c.Metadata.Description = "end of training"
	manager := checkpoints.NewManager(checkpoints.DefaultManagerConfig(r.logger.OutDir()), r.logger.Logger)
	path, err := manager.Save(c)
	if err != nil {
		return err
	}
	r.logger.Info("saved model", zap.String("path", path))
	return nil
}
