package visualize

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart"
)

// Series is the values of one source against the batch they were logged at
type Series struct {
	Name    string
	Batches []float64
	Values  []float64
}

// GroupBy splits points by source name, in order of first appearance
func GroupBy(points []Point, key Key) []Series {
	index := make(map[string]int)
	var series []Series
	for _, p := range points {
		i, ok := index[p.Name]
		if !ok {
			i = len(series)
			index[p.Name] = i
			series = append(series, Series{Name: p.Name})
		}
		series[i].Batches = append(series[i].Batches, float64(p.Batch))
		series[i].Values = append(series[i].Values, p.Value(key))
	}
	return series
}

// Render draws series as lines into a PNG image
func Render(w io.Writer, title string, key Key, series []Series) error {
	if len(series) == 0 {
		return errors.New("nothing to plot")
	}

	var lines []chart.Series
	for i, s := range series {
		lines = append(lines, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: s.Batches,
			YValues: s.Values,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.GetAlternateColor(i),
			},
		})
	}

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "batch",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     flatRange(series, func(s Series) []float64 { return s.Batches }),
		},
		YAxis: chart.YAxis{
			Name:      string(key),
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     flatRange(series, func(s Series) []float64 { return s.Values }),
		},
		Series: lines,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	return errors.Wrap(graph.Render(chart.PNG, w), "render chart")
}

// flatRange returns a range of width one centred on the values of an axis
// whose values are all equal, and nil otherwise so the chart fits the data.
// A single point or a constant metric has a zero-width range, which the
// chart cannot draw.
func flatRange(series []Series, values func(Series) []float64) chart.Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range values(s) {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo != hi {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 0.5, Max: lo + 0.5}
}

// PlotFile parses the log at logPath and writes its chart next to it with a
// .png extension. It returns the chart path and the plotted series.
func PlotFile(logPath string, key Key) (string, []Series, error) {
	points, err := ParseFile(logPath)
	if err != nil {
		return "", nil, err
	}
	series := GroupBy(points, key)
	if len(series) == 0 {
		return "", nil, errors.Errorf("%s has no progress lines", logPath)
	}

	out := strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".png"
	f, err := os.Create(out)
	if err != nil {
		return "", nil, errors.Wrap(err, "create chart file")
	}
	if err := Render(f, filepath.Base(logPath), key, series); err != nil {
		f.Close()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		return "", nil, errors.Wrap(err, "close chart file")
	}
	return out, series, nil
}

// Summary describes the values of one series
type Summary struct {
	Name   string
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	Last   float64
}

// Summarize computes a Summary per non-empty series
func Summarize(series []Series) ([]Summary, error) {
	var out []Summary
	for _, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		sum := Summary{Name: s.Name, Count: len(s.Values), Last: s.Values[len(s.Values)-1]}
		var err error
		if sum.Mean, err = stats.Mean(s.Values); err != nil {
			return nil, errors.Wrapf(err, "mean of %s", s.Name)
		}
		if sum.Median, err = stats.Median(s.Values); err != nil {
			return nil, errors.Wrapf(err, "median of %s", s.Name)
		}
		if sum.Min, err = stats.Min(s.Values); err != nil {
			return nil, errors.Wrapf(err, "min of %s", s.Name)
		}
		if sum.Max, err = stats.Max(s.Values); err != nil {
			return nil, errors.Wrapf(err, "max of %s", s.Name)
		}
		out = append(out, sum)
	}
	return out, nil
}

// WriteSummary prints one line per summary
func WriteSummary(w io.Writer, key Key, summaries []Summary) {
	for _, s := range summaries {
		fmt.Fprintf(w, "%12s n=%d\t%s mean %.3f\tmedian %.3f\tmin %.3f\tmax %.3f\tlast %.3f\n",
			s.Name, s.Count, key, s.Mean, s.Median, s.Min, s.Max, s.Last)
	}
}
