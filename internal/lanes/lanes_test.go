package lanes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/media"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/segment"
	"audio-workbench/internal/storage"
	"audio-workbench/internal/summary"
	"audio-workbench/internal/transcribe"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

// fakeTranscoder writes empty output files and records cuts.
type fakeTranscoder struct {
	mu        sync.Mutex
	durations map[string]float64
	probeErr  error
	cuts      []string
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.durations[filepath.Base(path)], nil
}

func (f *fakeTranscoder) Extract(ctx context.Context, req media.ExtractRequest, sink progress.Sink) error {
	sink.Report(50, "extracting")
	return touch(req.Output)
}

func (f *fakeTranscoder) Cut(ctx context.Context, input, output string, start, length float64) error {
	f.mu.Lock()
	f.cuts = append(f.cuts, fmt.Sprintf("%s@%g+%g", filepath.Base(output), start, length))
	f.mu.Unlock()
	return touch(output)
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

// fakeUploader returns deterministic URLs.
type fakeUploader struct {
	fail map[string]error
}

func (f *fakeUploader) Upload(ctx context.Context, path string, sink progress.Sink) (storage.Object, error) {
	if err := f.fail[filepath.Base(path)]; err != nil {
		return storage.Object{}, err
	}
	key := "audio_transcription/" + filepath.Base(path)
	return storage.Object{Key: key, URL: "https://bucket.example.com/" + key}, nil
}

// fakeTranscriber answers by URL.
type fakeTranscriber struct {
	results map[string]transcribe.Transcript
	errs    map[string]error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURL string, sink progress.Sink) (transcribe.Transcript, error) {
	if err := f.errs[audioURL]; err != nil {
		return transcribe.Transcript{}, err
	}
	sink.Report(50, "waiting")
	return f.results[audioURL], nil
}

func transcriptOf(text string, durationMS int64) transcribe.Transcript {
	var t transcribe.Transcript
	t.AudioInfo.Duration = durationMS
	t.Result.Text = text
	t.Result.Utterances = []transcribe.Utterance{{StartTime: 0, EndTime: durationMS, Text: text}}
	return t
}

// TestTranscriptionBatchEndToEnd runs two URLs and checks the summary order.
func TestTranscriptionBatchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	urlA := "https://bucket.example.com/audio/first%20part.mp3"
	urlB := "https://bucket.example.com/audio/second.mp3"
	lane := &Transcription{
		Transcriber: &fakeTranscriber{results: map[string]transcribe.Transcript{
			urlA: transcriptOf("alpha text", 61000),
			urlB: transcriptOf("beta text", 3000),
		}},
		Env: Env{Now: fixedNow},
	}

	var reported []int
	res, err := lane.Run(context.Background(), TranscriptionRequest{URLs: []string{urlA, urlB}, OutputDir: dir},
		progress.SinkFunc(func(p int, _ string) { reported = append(reported, p) }))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != domain.BatchStatusSuccess || res.SuccessCount != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Items[0].Name != "first part.mp3" || res.Items[0].DurationMS != 61000 {
		t.Fatalf("item[0] = %+v", res.Items[0])
	}
	for _, name := range []string{"first part.json", "first part.txt", "second.txt", summary.ResultsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(res.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	got := string(data)
	ia, ib := strings.Index(got, "alpha text"), strings.Index(got, "beta text")
	if ia < 0 || ib < ia {
		t.Fatalf("summary out of order:\n%s", got)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Fatalf("progress decreased: %v", reported)
		}
	}
	if reported[len(reported)-1] != 100 {
		t.Fatalf("last progress = %d, want 100", reported[len(reported)-1])
	}
}

// TestTranscriptionSameBaseNameKeepsOutputsApart checks two URLs ending in
// the same file name get their own files and their own summary sections.
func TestTranscriptionSameBaseNameKeepsOutputsApart(t *testing.T) {
	dir := t.TempDir()
	urlA := "https://bucket.example.com/day1/audio.mp3"
	urlB := "https://bucket.example.com/day2/audio.mp3"
	lane := &Transcription{
		Transcriber: &fakeTranscriber{results: map[string]transcribe.Transcript{
			urlA: transcriptOf("ALPHA", 1000),
			urlB: transcriptOf("BETA", 1000),
		}},
		Env: Env{Now: fixedNow},
	}

	res, err := lane.Run(context.Background(), TranscriptionRequest{URLs: []string{urlA, urlB}, OutputDir: dir}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	textA, textB := res.Items[0].Outputs[summary.OutputText], res.Items[1].Outputs[summary.OutputText]
	if textA != filepath.Join(dir, "audio.txt") || textB != filepath.Join(dir, "audio_2.txt") {
		t.Fatalf("text outputs = %s, %s", textA, textB)
	}
	for path, want := range map[string]string{textA: "ALPHA", textB: "BETA"} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if !strings.Contains(string(data), want) {
			t.Fatalf("%s does not hold %s", filepath.Base(path), want)
		}
	}

	data, err := os.ReadFile(res.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	got := string(data)
	if strings.Count(got, "ALPHA") != 1 || strings.Count(got, "BETA") != 1 {
		t.Fatalf("summary mixes transcripts:\n%s", got)
	}
	if strings.Index(got, "ALPHA") > strings.Index(got, "BETA") {
		t.Fatalf("summary out of order:\n%s", got)
	}
}

// TestTranscriptionClassifiesFailures checks failed vs error item statuses.
func TestTranscriptionClassifiesFailures(t *testing.T) {
	dir := t.TempDir()
	lane := &Transcription{
		Transcriber: &fakeTranscriber{
			results: map[string]transcribe.Transcript{"https://x/ok.mp3": transcriptOf("ok", 1000)},
			errs: map[string]error{
				"https://x/slow.mp3":  fmt.Errorf("%w after 30m0s", transcribe.ErrTimeout),
				"https://x/crash.mp3": errors.New("connection reset"),
			},
		},
		Env: Env{Now: fixedNow},
	}

	res, err := lane.Run(context.Background(), TranscriptionRequest{
		URLs:      []string{"https://x/ok.mp3", "https://x/slow.mp3", "https://x/crash.mp3"},
		OutputDir: dir,
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []domain.ItemStatus{domain.ItemStatusSuccess, domain.ItemStatusFailed, domain.ItemStatusError}
	for i, status := range want {
		if res.Items[i].Status != status {
			t.Fatalf("item[%d].Status = %s, want %s", i, res.Items[i].Status, status)
		}
	}
	if res.Status != domain.BatchStatusPartial {
		t.Fatalf("status = %s, want partial", res.Status)
	}
}

// TestTranscriptionRejectsEmptyInput checks input validation before start.
func TestTranscriptionRejectsEmptyInput(t *testing.T) {
	lane := &Transcription{Transcriber: &fakeTranscriber{}}
	if _, err := lane.Run(context.Background(), TranscriptionRequest{URLs: []string{" "}, OutputDir: t.TempDir()}, nil); !errors.Is(err, batch.ErrEmptyWorkList) {
		t.Fatalf("error = %v, want %v", err, batch.ErrEmptyWorkList)
	}
	var verr *domain.ValidationError
	if _, err := lane.Run(context.Background(), TranscriptionRequest{URLs: []string{"https://x/a.mp3"}}, nil); !errors.As(err, &verr) {
		t.Fatalf("error = %v, want validation error", err)
	}
}

// TestSplitCutsEveryPlannedSegment checks the 5400s / 3600s case.
func TestSplitCutsEveryPlannedSegment(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "talk.mp3")
	if err := touch(input); err != nil {
		t.Fatalf("touch: %v", err)
	}
	tc := &fakeTranscoder{durations: map[string]float64{"talk.mp3": 5400}}
	lane := &Split{Transcoder: tc, Env: Env{Now: fixedNow}}

	res, err := lane.Run(context.Background(), SplitRequest{Input: input, SegmentSeconds: 3600}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.SegmentCount != 2 || res.LastSegmentLength != 1800 || res.Duration != 5400 {
		t.Fatalf("result = %+v", res)
	}
	want := []string{"talk_segment_1.mp3@0+3600", "talk_segment_2.mp3@3600+1800"}
	if strings.Join(tc.cuts, ",") != strings.Join(want, ",") {
		t.Fatalf("cuts = %v, want %v", tc.cuts, want)
	}
	if res.SuccessCount != 2 {
		t.Fatalf("success = %d, want 2", res.SuccessCount)
	}
}

// TestSplitIndexlessTemplateCutsEverySegment checks a template without
// {index} still yields one distinct file per planned segment.
func TestSplitIndexlessTemplateCutsEverySegment(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "talk.mp3")
	if err := touch(input); err != nil {
		t.Fatalf("touch: %v", err)
	}
	tc := &fakeTranscoder{durations: map[string]float64{"talk.mp3": 5400}}
	lane := &Split{Transcoder: tc, Env: Env{Now: fixedNow}}

	res, err := lane.Run(context.Background(), SplitRequest{Input: input, SegmentSeconds: 3600, NameTemplate: "{filename}_part"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"talk_part.mp3@0+3600", "talk_part_2.mp3@3600+1800"}
	if strings.Join(tc.cuts, ",") != strings.Join(want, ",") {
		t.Fatalf("cuts = %v, want %v", tc.cuts, want)
	}
	if res.Items[0].Source == res.Items[1].Source {
		t.Fatalf("items share output %s", res.Items[0].Source)
	}
}

// TestSplitAbortsOnUnknownDuration checks the split lane stops early.
func TestSplitAbortsOnUnknownDuration(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.mp3")
	if err := touch(input); err != nil {
		t.Fatalf("touch: %v", err)
	}
	tc := &fakeTranscoder{durations: map[string]float64{}}
	lane := &Split{Transcoder: tc}

	_, err := lane.Run(context.Background(), SplitRequest{Input: input, SegmentSeconds: 60}, nil)
	if !errors.Is(err, segment.ErrDurationUnknown) {
		t.Fatalf("error = %v, want %v", err, segment.ErrDurationUnknown)
	}
	if len(tc.cuts) != 0 {
		t.Fatalf("cuts = %v, want none", tc.cuts)
	}
}

// TestExtractionDirectoryScan checks recursion, filtering and metadata.
func TestExtractionDirectoryScan(t *testing.T) {
	faker := gofakeit.New(7)
	dir := t.TempDir()
	first := faker.Word() + ".mp4"
	second := faker.Word() + "x.MOV"
	for _, p := range []string{first, filepath.Join("nested", second), "notes.txt"} {
		if err := touch(filepath.Join(dir, p)); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	tc := &fakeTranscoder{durations: map[string]float64{first: 150, second: 40}}
	settings := domain.Settings{SegmentDuration: 60, AudioFormat: "mp3", SplitNameTemplate: segment.DefaultNameTemplate}
	lane := &Extraction{Transcoder: tc, Settings: settings, Env: Env{Now: fixedNow}}

	res, err := lane.Run(context.Background(), ExtractionRequest{Input: dir}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Items) != 2 || res.SuccessCount != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.OutputDir != filepath.Join(dir, "audio_output") {
		t.Fatalf("output dir = %s", res.OutputDir)
	}

	byName := map[string]domain.WorkItem{}
	for _, item := range res.Items {
		byName[item.Name] = item
	}
	if got := byName[first].Outputs[summary.OutputSegments]; got != "3" {
		t.Fatalf("segments of %s = %s, want 3", first, got)
	}
	if got := byName[second].Outputs[summary.OutputSegments]; got != "1" {
		t.Fatalf("segments of %s = %s, want 1", second, got)
	}

	data, err := os.ReadFile(byName[first].Outputs[summary.OutputMetadata])
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta videoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if len(meta.SegmentInfo) != 3 || meta.SegmentInfo[2].Duration != 30 {
		t.Fatalf("segment info = %+v", meta.SegmentInfo)
	}
	if !strings.HasPrefix(filepath.Base(res.SummaryPath), "extraction_summary_") {
		t.Fatalf("summary path = %s", res.SummaryPath)
	}
}

// TestExtractionSkipsUnknownDuration checks the item is failed, not aborted.
func TestExtractionSkipsUnknownDuration(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	if err := touch(video); err != nil {
		t.Fatalf("touch: %v", err)
	}
	lane := &Extraction{
		Transcoder: &fakeTranscoder{durations: map[string]float64{}},
		Settings:   domain.Settings{SegmentDuration: 60},
		Env:        Env{Now: fixedNow},
	}

	res, err := lane.Run(context.Background(), ExtractionRequest{Input: video}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Items[0].Status != domain.ItemStatusFailed {
		t.Fatalf("status = %s, want failed", res.Items[0].Status)
	}
}

// TestExtractionIndexlessTemplateKeepsSegmentsApart checks segment files
// never overwrite each other or the extracted audio.
func TestExtractionIndexlessTemplateKeepsSegmentsApart(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	if err := touch(video); err != nil {
		t.Fatalf("touch: %v", err)
	}
	tc := &fakeTranscoder{durations: map[string]float64{"clip.mp4": 150}}
	lane := &Extraction{
		Transcoder: tc,
		Settings:   domain.Settings{SegmentDuration: 60, AudioFormat: "mp3", SplitNameTemplate: "{filename}"},
		Env:        Env{Now: fixedNow},
	}

	res, err := lane.Run(context.Background(), ExtractionRequest{Input: video}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"clip_1.mp3@0+60", "clip_2.mp3@60+60", "clip_3.mp3@120+30"}
	if strings.Join(tc.cuts, ",") != strings.Join(want, ",") {
		t.Fatalf("cuts = %v, want %v", tc.cuts, want)
	}
	if got := res.Items[0].Outputs[summary.OutputSegments]; got != "3" {
		t.Fatalf("segments = %s, want 3", got)
	}
}

// TestUploadWritesURLList checks URLs, failures and the list artifact.
func TestUploadWritesURLList(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.mp3"), filepath.Join(dir, "b.mp3")
	for _, p := range []string{a, b} {
		if err := touch(p); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}
	lane := &Upload{
		Uploader: &fakeUploader{fail: map[string]error{"b.mp3": errors.New("access denied")}},
		Env:      Env{Now: fixedNow},
	}

	res, err := lane.Run(context.Background(), UploadRequest{Paths: []string{a, b, filepath.Join(dir, "gone.mp3")}}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []domain.ItemStatus{domain.ItemStatusSuccess, domain.ItemStatusError, domain.ItemStatusFailed}
	for i, status := range want {
		if res.Items[i].Status != status {
			t.Fatalf("item[%d].Status = %s, want %s", i, res.Items[i].Status, status)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, summary.URLListFile))
	if err != nil {
		t.Fatalf("read url list: %v", err)
	}
	if !strings.HasPrefix(string(data), "https://bucket.example.com/audio_transcription/a.mp3\n") {
		t.Fatalf("url list = %q", data)
	}
}
