// Package segment plans how a media timeline is cut into fixed-length pieces.
package segment

import (
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"audio-workbench/internal/domain"
)

// DefaultNameTemplate names segments when no template is configured.
const DefaultNameTemplate = "{filename}_segment_{index}"

// ErrDurationUnknown is returned when splitting is requested for an asset
// whose probed duration is not positive.
var ErrDurationUnknown = errors.New("asset duration unknown")

// Compute returns the segment plan for duration seconds cut every
// segmentSeconds. A non-positive segmentSeconds, or a duration that fits in
// one segment, yields a single segment covering the whole asset.
func Compute(duration float64, segmentSeconds int) (domain.SegmentPlan, error) {
	plan := domain.SegmentPlan{Duration: duration, SegmentSeconds: segmentSeconds}
	if segmentSeconds <= 0 {
		if duration < 0 {
			duration = 0
		}
		plan.Segments = []domain.Segment{{Index: 1, Start: 0, End: duration}}
		return plan, nil
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return domain.SegmentPlan{}, ErrDurationUnknown
	}

	step := float64(segmentSeconds)
	if duration <= step {
		plan.Segments = []domain.Segment{{Index: 1, Start: 0, End: duration}}
		return plan, nil
	}

	count := Count(duration, segmentSeconds)
	plan.Segments = make([]domain.Segment, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * step
		end := math.Min(start+step, duration)
		plan.Segments = append(plan.Segments, domain.Segment{Index: i + 1, Start: start, End: end})
	}
	return plan, nil
}

// Count returns ceil(duration/segmentSeconds), or 1 when segmentSeconds <= 0.
func Count(duration float64, segmentSeconds int) int {
	if segmentSeconds <= 0 || duration <= float64(segmentSeconds) {
		return 1
	}
	return int(math.Ceil(duration / float64(segmentSeconds)))
}

// Name fills {filename}, {index} (1-based) and {start_time} (seconds) in
// template. An empty template uses DefaultNameTemplate.
func Name(template, filename string, seg domain.Segment) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultNameTemplate
	}
	r := strings.NewReplacer(
		"{filename}", filename,
		"{index}", strconv.Itoa(seg.Index),
		"{start_time}", strconv.FormatFloat(seg.Start, 'f', -1, 64),
	)
	return r.Replace(template)
}

// Apply names every segment of plan from the source path's base name and
// returns the updated plan. Names are unique within the plan and, when the
// plan cuts the source, never equal to the source's own stem: a template
// that yields a repeated name gets "_{index}" appended.
func Apply(plan domain.SegmentPlan, template, sourcePath string) domain.SegmentPlan {
	base := Stem(sourcePath)
	seen := make(map[string]bool, len(plan.Segments)+1)
	if len(plan.Segments) > 1 {
		seen[base] = true
	}
	segments := make([]domain.Segment, len(plan.Segments))
	for i, seg := range plan.Segments {
		name := Name(template, base, seg)
		for seen[name] {
			name += "_" + strconv.Itoa(seg.Index)
		}
		seen[name] = true
		seg.Name = name
		segments[i] = seg
	}
	plan.Segments = segments
	return plan
}

// Stem returns the file name of path without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
