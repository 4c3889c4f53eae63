package dataset

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/vrd-classifier/training"
)

const trainLines = `{"features": [0.1, 0.2, 0.3], "subject": 1, "predicate": 0, "object": 2}
{"features": [0.4, 0.5, 0.6], "subject": 1, "predicate": 2, "object": 3, "image": "a.jpg"}
{"features": [0.7, 0.8, 0.9], "subject": 4, "predicate": 1, "object": 2}
`

const testLines = `{"features": [1, 1, 1], "subject": 1, "predicate": 0, "object": 2}
{"features": [2, 2, 2], "subject": 9, "predicate": 0, "object": 2}
{"features": [3, 3, 3], "subject": 4, "predicate": 1, "object": 2}
{"features": [4, 4, 4], "subject": 1, "predicate": 2, "object": 3}
`

func writeSplit(t *testing.T, dir, split, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(Path(dir, split), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, "train", trainLines)

	d, err := Load(dir, "train")
	require.NoError(t, err)

	assert.Equal(t, "train", d.Name())
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 3, d.FeatureDim())
	assert.Equal(t, 3, d.NumClasses())

	features, label, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.5, 0.6}, features)
	assert.Equal(t, 2, label)

	s, err := d.Sample(2)
	require.NoError(t, err)
	assert.Equal(t, Triple{Subject: 4, Predicate: 1, Object: 2}, s.Triple())

	_, _, err = d.Get(3)
	assert.Error(t, err)
	_, err = d.Sample(-1)
	assert.Error(t, err)

	assert.True(t, strings.HasPrefix(d.String(), "train: 3 samples, 3 features ("), d.String())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open missing split")

	writeSplit(t, dir, "empty", "")
	_, err = Load(dir, "empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no samples")

	writeSplit(t, dir, "broken", `{"features": [1], "predicate": 0}`+"\n{oops\n")
	_, err = Load(dir, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode sample 1")
}

func TestFromSamplesValidation(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		wantErr string
	}{
		{"no features", []Sample{{}}, "has no features"},
		{"ragged", []Sample{{Features: []float64{1, 2}}, {Features: []float64{1}}}, "expected 2"},
		{"negative label", []Sample{{Features: []float64{1}, Predicate: -1}}, "negative predicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSamples("x", tt.samples)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	d, err := FromSamples("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, d.NumClasses())
	assert.Equal(t, "empty: 0 samples, 0 features", d.String())
}

func TestSplitter(t *testing.T) {
	train, err := Read("train", strings.NewReader(trainLines))
	require.NoError(t, err)
	test, err := Read("test", strings.NewReader(testLines))
	require.NoError(t, err)

	seen, zeroShot := NewSplitter(train, 0).Split(test)
	assert.Equal(t, SeenName, seen.Name())
	assert.Equal(t, ZeroShotName, zeroShot.Name())
	require.Equal(t, 3, seen.Len())
	require.Equal(t, 1, zeroShot.Len())

	features, _, err := zeroShot.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, features)

	// order within a part is preserved
	first, _, err := seen.Get(0)
	require.NoError(t, err)
	last, _, err := seen.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, first)
	assert.Equal(t, []float64{4, 4, 4}, last)
}

func TestSplitterLimit(t *testing.T) {
	train, err := Read("train", strings.NewReader(trainLines))
	require.NoError(t, err)
	test, err := Read("test", strings.NewReader(testLines))
	require.NoError(t, err)

	splitter := NewSplitter(train, 1)
	assert.True(t, splitter.Seen(Triple{Subject: 1, Predicate: 0, Object: 2}))
	assert.False(t, splitter.Seen(Triple{Subject: 1, Predicate: 2, Object: 3}))

	seen, zeroShot := splitter.Split(test)
	assert.Equal(t, 1, seen.Len())
	assert.Equal(t, 3, zeroShot.Len())
}

func TestSplitFeedsDataLoader(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, "train", trainLines)
	writeSplit(t, dir, "test", testLines)

	train, err := Load(dir, "train")
	require.NoError(t, err)
	test, err := Load(dir, "test")
	require.NoError(t, err)
	_, zeroShot := NewSplitter(train, 0).Split(test)

	loader := training.NewDataLoader(zeroShot, 0, false, rand.New(rand.NewSource(1)))
	assert.Equal(t, ZeroShotName, training.SourceName(loader))
	assert.Equal(t, 1, loader.Len())

	loader.Reset()
	batch, err := loader.Next()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, []int{0}, batch.Labels)
	assert.Equal(t, filepath.Join(dir, "test.jsonl"), Path(dir, "test"))
}
