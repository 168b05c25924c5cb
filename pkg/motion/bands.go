package motion

import "fmt"

// Range is an open interval (Min, Max).
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports Min < v < Max.
func (r Range) Contains(v float64) bool {
	return v > r.Min && v < r.Max
}

// Bands holds the empirical acceptance thresholds for a candidate blob.
// They reject tall, narrow silhouettes and very regular rigid shapes
// while keeping irregular animal-like blobs.
type Bands struct {
	MinArea     float64 // area must exceed this (px²)
	Aspect      Range   // width / height
	Solidity    Range   // area / hull area
	Extent      Range   // area / bbox area
	MinWidth    int     // width must exceed this
	MinHeight   int     // height must exceed this
	Compactness Range   // perimeter² / area
}

// DefaultBands returns the tuned defaults.
func DefaultBands() Bands {
	return Bands{
		MinArea:     1000,
		Aspect:      Range{0.2, 4.0},
		Solidity:    Range{0.2, 0.9},
		Extent:      Range{0.1, 0.8},
		MinWidth:    20,
		MinHeight:   20,
		Compactness: Range{10, 50},
	}
}

// Reject names the first band a region fails.
type Reject string

const (
	Accepted          Reject = ""
	RejectArea        Reject = "area"
	RejectAspect      Reject = "aspect"
	RejectSolidity    Reject = "solidity"
	RejectExtent      Reject = "extent"
	RejectSize        Reject = "size"
	RejectCompactness Reject = "compactness"
)

// Check returns Accepted or the first failing band. Bands are checked in
// the same order a contour is measured, cheapest first.
func (b Bands) Check(r Region) Reject {
	switch {
	case !(r.Area > b.MinArea):
		return RejectArea
	case !b.Aspect.Contains(r.AspectRatio):
		return RejectAspect
	case !b.Solidity.Contains(r.Solidity):
		return RejectSolidity
	case !b.Extent.Contains(r.Extent):
		return RejectExtent
	case r.Width <= b.MinWidth || r.Height <= b.MinHeight:
		return RejectSize
	case !b.Compactness.Contains(r.Compactness):
		return RejectCompactness
	}
	return Accepted
}

// Accept reports whether r passes every band.
func (b Bands) Accept(r Region) bool {
	return b.Check(r) == Accepted
}

// Validate returns a list of problems, or nil.
func (b Bands) Validate() []string {
	var errors []string
	if b.MinArea < 0 {
		errors = append(errors, "min_area must be >= 0")
	}
	ranges := []struct {
		name string
		rg   Range
	}{
		{"aspect", b.Aspect},
		{"solidity", b.Solidity},
		{"extent", b.Extent},
		{"compactness", b.Compactness},
	}
	for _, r := range ranges {
		if r.rg.Min >= r.rg.Max {
			errors = append(errors, fmt.Sprintf("%s_min must be below %s_max", r.name, r.name))
		}
	}
	if b.MinWidth < 0 || b.MinHeight < 0 {
		errors = append(errors, "min_width and min_height must be >= 0")
	}
	return errors
}

// Classify filters candidates through the bands. present is true iff at
// least one candidate was accepted.
func (b Bands) Classify(candidates []Region) (present bool, accepted []Region) {
	for _, c := range candidates {
		if b.Accept(c) {
			accepted = append(accepted, c)
		}
	}
	return len(accepted) > 0, accepted
}
