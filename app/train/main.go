// Command train fits a relation classifier on a VRD JSON-lines dataset,
// evaluating on the seen and zero-shot parts of the test split as it goes.
package main

import (
	"log"
	"os"

	"github.com/alexflint/go-arg"
)

type args struct {
	Data       string  `arg:"--data" help:"directory containing train.jsonl and test.jsonl"`
	LR         float64 `arg:"--lr" help:"learning rate"`
	Optim      string  `arg:"--optim" help:"adam, sgd or rmsprop"`
	BatchSize  int     `arg:"--bs" help:"training batch size"`
	TestBatch  int     `arg:"--tbs" help:"evaluation batch size, 0 puts each test set in one batch"`
	Epochs     *int    `arg:"--ep" help:"number of epochs (default 30, or num_epochs from --config)"`
	TrainSize  int     `arg:"-N" help:"use only the first N training samples, 0 for all"`
	Val        float64 `arg:"--val" help:"fraction of the primary test set to use for validation, the rest is unused"`
	NoVal      bool    `arg:"--noval" help:"disable evaluation"`
	CPU        bool    `arg:"--cpu" help:"do not request the GPU"`
	LogFile    string  `arg:"--log" help:"log file, overrides the location derived from --outdir"`
	Geometry   string  `arg:"--geom" help:"space separated layer widths"`
	Sched      bool    `arg:"--sched" help:"enable the learning-rate scheduler"`
	SchedType  string  `arg:"--sched-type" help:"plateau, step, exponential, cosine or constant"`
	Patience   int     `arg:"--patience" help:"plateau patience in iterations, or step size in epochs for the step scheduler"`
	TestEvery  *int    `arg:"--test_every" help:"evaluate every this many batches of an epoch"`
	PrintEvery *int    `arg:"--print_every" help:"print training progress every this many iterations"`
	EndSave    bool    `arg:"--end-save" help:"save the trained model into the output directory"`
	OutDir     string  `arg:"--outdir" help:"directory for logs and checkpoints"`
	NoPrefix   bool    `arg:"--noprefix" help:"do not create a per-run directory under --outdir"`
	NoSplitZS  bool    `arg:"--nosplitzs" help:"evaluate on the unified test set instead of seen and zero-shot parts"`
	Load       string  `arg:"--load" help:"checkpoint to initialize the model from"`
	SaveInit   string  `arg:"-s" help:"save the initialized, untrained model to this path"`
	Config     string  `arg:"--config" help:"YAML solver configuration"`
	Seed       int64   `arg:"--seed" help:"random seed, 0 seeds from the clock"`
	Policy     string  `arg:"--scheduler-policy" help:"exclusive or independent"`
}

func defaultArgs() args {
	return args{
		Data:      "data/vrd-dataset",
		LR:        0.001,
		Optim:     "adam",
		BatchSize: 32,
		Geometry:  "1000 2000 2000 70",
		SchedType: "plateau",
		Patience:  10,
		OutDir:    "log",
	}
}

func main() {
	a := defaultArgs()
	arg.MustParse(&a)

	r, err := newRunner(a, os.Stdout)
	if err != nil {
		log.Fatalln(err)
	}
	if err := r.execute(); err != nil {
		os.Exit(1)
	}
}
