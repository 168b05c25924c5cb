// Package motion holds the geometry side of blob detection: shape metrics
// for candidate regions, the acceptance bands that separate animal-like
// blobs from people and rigid objects, and a cosmetic labelling layer.
//
// Nothing here touches pixels; pkg/vision turns frames into candidates.
package motion

import "image"

// Region is a candidate foreground blob with its derived shape metrics.
type Region struct {
	X, Y          int
	Width, Height int

	Area        float64 // contour area
	HullArea    float64 // convex hull area
	Perimeter   float64 // closed arc length
	AspectRatio float64 // width / height
	Solidity    float64 // area / hull area
	Extent      float64 // area / bbox area
	Compactness float64 // perimeter² / area
}

// NewRegion derives the shape metrics from raw contour measurements.
// Degenerate inputs leave the affected ratio at zero, which every band
// rejects.
func NewRegion(bounds image.Rectangle, area, hullArea, perimeter float64) Region {
	r := Region{
		X:         bounds.Min.X,
		Y:         bounds.Min.Y,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Area:      area,
		HullArea:  hullArea,
		Perimeter: perimeter,
	}
	if r.Height > 0 {
		r.AspectRatio = float64(r.Width) / float64(r.Height)
	}
	if hullArea > 0 {
		r.Solidity = area / hullArea
	}
	if box := float64(r.Width * r.Height); box > 0 {
		r.Extent = area / box
	}
	if area > 0 {
		r.Compactness = perimeter * perimeter / area
	}
	return r
}

// Bounds returns the bounding box as an image.Rectangle.
func (r Region) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Center returns the bounding box centre.
func (r Region) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}

// Result is the detector's verdict for one frame.
type Result struct {
	Present bool
	Regions []Region // accepted regions only
	Labels  []string // cosmetic, parallel to Regions, may be nil
}
