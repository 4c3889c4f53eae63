// Command plot charts one metric of every source found in training logs.
// Each log gets a PNG next to it and a summary on stdout.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/tsawler/vrd-classifier/visualize"
)

func main() {
	args := struct {
		Key  string   `arg:"--key" help:"value to plot: acc or loss"`
		Logs []string `arg:"positional" help:"log files (default log/*.log)"`
	}{
		Key: string(visualize.KeyAcc),
	}
	arg.MustParse(&args)

	key, err := visualize.ParseKey(args.Key)
	if err != nil {
		log.Fatalln(err)
	}

	paths := args.Logs
	if len(paths) == 0 {
		if paths, err = filepath.Glob(filepath.Join("log", "*.log")); err != nil {
			log.Fatalln(err)
		}
	}
	if len(paths) == 0 {
		log.Fatalln("no log files found")
	}

	if err := plot(paths, key); err != nil {
		log.Fatalln(err)
	}
}

// plot charts every path and reports failures without stopping at the first
func plot(paths []string, key visualize.Key) error {
	failed := 0
	for _, path := range paths {
		if err := plotOne(path, key); err != nil {
			log.Println(err)
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d logs could not be plotted", failed, len(paths))
	}
	return nil
}

func plotOne(path string, key visualize.Key) error {
	out, series, err := visualize.PlotFile(path, key)
	if err != nil {
		return errors.Wrapf(err, "plot %s", path)
	}
	summaries, err := visualize.Summarize(series)
	if err != nil {
		return errors.Wrapf(err, "summarize %s", path)
	}
	fmt.Printf("%s -> %s\n", path, out)
	visualize.WriteSummary(os.Stdout, key, summaries)
	return nil
}
