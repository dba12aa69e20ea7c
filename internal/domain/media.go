package domain

// Segment is one contiguous slice of a media timeline, in seconds.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Name  string  `json:"name"`
}

// Length returns the segment duration in seconds.
func (s Segment) Length() float64 {
	return s.End - s.Start
}

// SegmentPlan is the ordered list of segments covering [0, Duration).
type SegmentPlan struct {
	Duration       float64   `json:"duration"`
	SegmentSeconds int       `json:"segmentSeconds"`
	Segments       []Segment `json:"segments"`
}

// MediaAsset is a source file whose duration is resolved by a probe.
type MediaAsset struct {
	Source         string  `json:"source"`
	Duration       float64 `json:"duration"`
	SegmentSeconds int     `json:"segmentSeconds"`
}

// ProgressEvent is one progress notification from a running task.
type ProgressEvent struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}
