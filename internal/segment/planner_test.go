package segment

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/brianvoe/gofakeit/v6"

	"audio-workbench/internal/domain"
)

// TestComputeCoversTimeline checks contiguity, count and coverage over random inputs.
func TestComputeCoversTimeline(t *testing.T) {
	faker := gofakeit.New(42)
	for i := 0; i < 200; i++ {
		duration := faker.Float64Range(0.5, 20000)
		seconds := faker.IntRange(1, 7200)

		plan, err := Compute(duration, seconds)
		if err != nil {
			t.Fatalf("Compute(%v, %d) error = %v", duration, seconds, err)
		}

		want := 1
		if duration > float64(seconds) {
			want = int(math.Ceil(duration / float64(seconds)))
		}
		if len(plan.Segments) != want {
			t.Fatalf("Compute(%v, %d) count = %d, want %d", duration, seconds, len(plan.Segments), want)
		}
		if plan.Segments[0].Start != 0 {
			t.Fatalf("first start = %v, want 0", plan.Segments[0].Start)
		}
		last := plan.Segments[len(plan.Segments)-1]
		if last.End != duration {
			t.Fatalf("last end = %v, want %v", last.End, duration)
		}
		for j := 1; j < len(plan.Segments); j++ {
			if plan.Segments[j].Start != plan.Segments[j-1].End {
				t.Fatalf("segment %d starts at %v, previous ends at %v", j, plan.Segments[j].Start, plan.Segments[j-1].End)
			}
			if plan.Segments[j].Index != j+1 {
				t.Fatalf("segment index = %d, want %d", plan.Segments[j].Index, j+1)
			}
		}
	}
}

// TestComputeTwoSegments checks the 5400s / 3600s example.
func TestComputeTwoSegments(t *testing.T) {
	plan, err := Compute(5400, 3600)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	want := []domain.Segment{
		{Index: 1, Start: 0, End: 3600},
		{Index: 2, Start: 3600, End: 5400},
	}
	if !reflect.DeepEqual(plan.Segments, want) {
		t.Fatalf("segments = %+v, want %+v", plan.Segments, want)
	}
}

// TestComputeIdentity checks the single-segment cases.
func TestComputeIdentity(t *testing.T) {
	for _, tc := range []struct {
		duration float64
		seconds  int
	}{
		{120, 0},
		{120, -5},
		{120, 120},
		{59.5, 60},
	} {
		plan, err := Compute(tc.duration, tc.seconds)
		if err != nil {
			t.Fatalf("Compute(%v, %d) error = %v", tc.duration, tc.seconds, err)
		}
		if len(plan.Segments) != 1 || plan.Segments[0].Start != 0 || plan.Segments[0].End != tc.duration {
			t.Fatalf("Compute(%v, %d) = %+v, want one full segment", tc.duration, tc.seconds, plan.Segments)
		}
	}
}

// TestComputeUnknownDuration checks the probe-failure error.
func TestComputeUnknownDuration(t *testing.T) {
	for _, d := range []float64{0, -1, math.NaN()} {
		if _, err := Compute(d, 600); !errors.Is(err, ErrDurationUnknown) {
			t.Fatalf("Compute(%v) error = %v, want %v", d, err, ErrDurationUnknown)
		}
	}
}

// TestComputeIsIdempotent checks identical inputs yield identical plans.
func TestComputeIsIdempotent(t *testing.T) {
	a, _ := Compute(7301.25, 600)
	b, _ := Compute(7301.25, 600)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("plans differ: %+v vs %+v", a, b)
	}
}

// TestName checks template substitution and the default template.
func TestName(t *testing.T) {
	seg := domain.Segment{Index: 3, Start: 7200, End: 9000}
	if got := Name("", "lecture", seg); got != "lecture_segment_3" {
		t.Fatalf("default name = %q, want lecture_segment_3", got)
	}
	if got := Name("{filename}_part_{index}@{start_time}", "talk", seg); got != "talk_part_3@7200" {
		t.Fatalf("name = %q, want talk_part_3@7200", got)
	}
	seg.Start = 12.5
	if got := Name("{start_time}", "x", seg); got != "12.5" {
		t.Fatalf("name = %q, want 12.5", got)
	}
}

// TestApplyUsesSourceStem checks names derive from the source file.
func TestApplyUsesSourceStem(t *testing.T) {
	plan, _ := Compute(5400, 3600)
	named := Apply(plan, "", "/data/audio/meeting.mp3")
	if named.Segments[0].Name != "meeting_segment_1" || named.Segments[1].Name != "meeting_segment_2" {
		t.Fatalf("names = %q, %q", named.Segments[0].Name, named.Segments[1].Name)
	}
	if plan.Segments[0].Name != "" {
		t.Fatal("Apply mutated the input plan")
	}
}

// TestApplyDisambiguatesRepeatedNames checks index-less templates still
// give every segment its own file name.
func TestApplyDisambiguatesRepeatedNames(t *testing.T) {
	plan, _ := Compute(9000, 3600)

	named := Apply(plan, "{filename}_part", "/data/talk.mp3")
	want := []string{"talk_part", "talk_part_2", "talk_part_3"}
	for i, seg := range named.Segments {
		if seg.Name != want[i] {
			t.Fatalf("segment %d name = %q, want %q", i+1, seg.Name, want[i])
		}
	}

	named = Apply(plan, "{filename}", "/data/talk.mp3")
	want = []string{"talk_1", "talk_2", "talk_3"}
	for i, seg := range named.Segments {
		if seg.Name != want[i] {
			t.Fatalf("segment %d name = %q, want %q", i+1, seg.Name, want[i])
		}
	}

	single, _ := Compute(600, 3600)
	if got := Apply(single, "{filename}", "/data/talk.mp3").Segments[0].Name; got != "talk" {
		t.Fatalf("single segment name = %q, want talk", got)
	}
}
