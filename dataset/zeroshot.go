package dataset

// Names of the two evaluation sources produced by Splitter
const (
	SeenName     = "seen"
	ZeroShotName = "zeroshot"
)

// Splitter remembers which relations occur in training data
type Splitter struct {
	seen map[Triple]struct{}
}

// NewSplitter indexes the relations of the first limit training samples.
// limit <= 0 indexes all of them.
func NewSplitter(train *VRD, limit int) *Splitter {
	n := train.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	s := &Splitter{seen: make(map[Triple]struct{})}
	for _, sample := range train.samples[:n] {
		s.seen[sample.Triple()] = struct{}{}
	}
	return s
}

// Seen reports whether t occurs in the indexed training samples
func (s *Splitter) Seen(t Triple) bool {
	_, ok := s.seen[t]
	return ok
}

// Split partitions test by whether each relation was seen in training.
// Sample order is kept within each part.
func (s *Splitter) Split(test *VRD) (seen, zeroShot *VRD) {
	var a, b []Sample
	for _, sample := range test.samples {
		if s.Seen(sample.Triple()) {
			a = append(a, sample)
		} else {
			b = append(b, sample)
		}
	}
	seen = &VRD{name: SeenName, samples: a, featureDim: test.featureDim}
	zeroShot = &VRD{name: ZeroShotName, samples: b, featureDim: test.featureDim}
	return seen, zeroShot
}
