package lanes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/media"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/segment"
	"audio-workbench/internal/summary"
)

// ExtractionRequest selects one video or a directory of videos.
type ExtractionRequest struct {
	Input string `json:"input"`
	// OutputDir defaults to audio_output next to the input.
	OutputDir  string   `json:"outputDir,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

// Extraction extracts audio from videos and splits it into segments.
type Extraction struct {
	Transcoder Transcoder
	Settings   domain.Settings
	Env        Env
}

// videoMetadata is written next to the extracted audio of each video.
type videoMetadata struct {
	Video struct {
		Path     string  `json:"path"`
		Name     string  `json:"name"`
		Duration float64 `json:"duration"`
	} `json:"video"`
	Audio       string           `json:"audio"`
	Segments    []string         `json:"segments"`
	SegmentInfo []segmentInfo    `json:"segmentInfo"`
	Settings    extractionConfig `json:"settings"`
}

type segmentInfo struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Start    float64 `json:"startTime"`
	End      float64 `json:"endTime"`
	Duration float64 `json:"duration"`
}

type extractionConfig struct {
	SegmentDuration int    `json:"segmentDuration"`
	AudioFormat     string `json:"audioFormat"`
	AudioBitrate    string `json:"audioBitrate"`
	AudioChannels   int    `json:"audioChannels"`
	AudioSampleRate int    `json:"audioSampleRate"`
	NoiseReduction  bool   `json:"noiseReduction"`
	NormalizeVolume bool   `json:"normalizeVolume"`
}

// Run collects the videos of req and processes them as one batch.
func (e *Extraction) Run(ctx context.Context, req ExtractionRequest, sink progress.Sink) (domain.BatchResult, error) {
	videos, baseDir, err := collectVideos(req.Input, req.Extensions)
	if err != nil {
		return domain.BatchResult{}, err
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(baseDir, "audio_output")
	}

	items := make([]domain.WorkItem, 0, len(videos))
	for _, video := range videos {
		items = append(items, domain.WorkItem{Name: filepath.Base(video), Source: video})
	}

	return batch.Run(ctx, items, func(ctx context.Context, item domain.WorkItem, sink progress.Sink) (batch.Outcome, error) {
		return e.processVideo(ctx, item.Source, outputDir, sink)
	}, batch.Options{
		Lane:      domain.LaneExtraction,
		OutputDir: outputDir,
		OnItem:    e.Env.OnItem,
		Logger:    e.Env.logger(),
		Now:       e.Env.Now,
		Summarize: func(result *domain.BatchResult) error {
			path, err := summary.WriteExtraction(outputDir, req.Input, *result, e.Env.now())
			if err != nil {
				return err
			}
			result.SummaryPath = path
			return nil
		},
	}, sink)
}

// processVideo extracts audio (first half of progress) then splits it
// (second half) and writes the per-video metadata file.
func (e *Extraction) processVideo(ctx context.Context, video, outputDir string, sink progress.Sink) (batch.Outcome, error) {
	stages := progress.Stages(sink, 50, 50)
	logger := e.Env.logger().With("video", video)
	s := e.Settings

	duration, err := e.Transcoder.Probe(ctx, video)
	if err != nil {
		return batch.Outcome{}, fmt.Errorf("probe %s: %w", filepath.Base(video), err)
	}
	if duration <= 0 {
		logger.Warn("duration unknown, skipping video")
		return batch.Outcome{Message: segment.ErrDurationUnknown.Error()}, nil
	}

	stem := segment.Stem(video)
	audioPath := filepath.Join(outputDir, stem+audioExtension(s.AudioFormat))
	err = e.Transcoder.Extract(ctx, media.ExtractRequest{
		Input:    video,
		Output:   audioPath,
		Duration: duration,
		Options: media.EncodeOptions{
			Format:          s.AudioFormat,
			Bitrate:         s.AudioBitrate,
			Channels:        s.AudioChannels,
			SampleRate:      s.AudioSampleRate,
			NoiseReduction:  s.NoiseReduction,
			NormalizeVolume: s.NormalizeVolume,
		},
	}, stages[0])
	if err != nil {
		return batch.Outcome{}, err
	}

	plan, err := segment.Compute(duration, s.SegmentDuration)
	if errors.Is(err, segment.ErrDurationUnknown) {
		logger.Warn("duration unknown, skipping split")
		return batch.Outcome{Message: err.Error(), Outputs: map[string]string{summary.OutputAudio: audioPath}}, nil
	}
	if err != nil {
		return batch.Outcome{}, err
	}
	plan = segment.Apply(plan, s.SplitNameTemplate, audioPath)

	paths, err := cutPlan(ctx, e.Transcoder, audioPath, outputDir, plan, stages[1])
	if err != nil {
		return batch.Outcome{}, err
	}

	meta := videoMetadata{
		Audio:    audioPath,
		Segments: paths,
		Settings: extractionConfig{
			SegmentDuration: s.SegmentDuration,
			AudioFormat:     s.AudioFormat,
			AudioBitrate:    s.AudioBitrate,
			AudioChannels:   s.AudioChannels,
			AudioSampleRate: s.AudioSampleRate,
			NoiseReduction:  s.NoiseReduction,
			NormalizeVolume: s.NormalizeVolume,
		},
	}
	meta.Video.Path = video
	meta.Video.Name = filepath.Base(video)
	meta.Video.Duration = duration
	for i, seg := range plan.Segments {
		meta.SegmentInfo = append(meta.SegmentInfo, segmentInfo{
			Index:    seg.Index,
			Path:     paths[i],
			Name:     filepath.Base(paths[i]),
			Start:    seg.Start,
			End:      seg.End,
			Duration: seg.Length(),
		})
	}
	metaPath := filepath.Join(outputDir, stem+"_metadata.json")
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return batch.Outcome{}, fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return batch.Outcome{}, fmt.Errorf("write metadata: %w", err)
	}

	stages[1].Report(100, "processed "+filepath.Base(video))
	return batch.Outcome{
		Success:    true,
		Message:    fmt.Sprintf("%d segment(s)", len(paths)),
		DurationMS: int64(duration * 1000),
		Outputs: map[string]string{
			summary.OutputAudio:    audioPath,
			summary.OutputSegments: strconv.Itoa(len(paths)),
			summary.OutputMetadata: metaPath,
		},
	}, nil
}

// cutPlan cuts every segment of plan out of audioPath. A single-segment
// plan reuses audioPath without cutting.
func cutPlan(ctx context.Context, t Transcoder, audioPath, outputDir string, plan domain.SegmentPlan, sink progress.Sink) ([]string, error) {
	if len(plan.Segments) <= 1 {
		sink.Report(100, "no split needed")
		return []string{audioPath}, nil
	}

	ext := filepath.Ext(audioPath)
	paths := make([]string, 0, len(plan.Segments))
	for i, seg := range plan.Segments {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		out := filepath.Join(outputDir, seg.Name+ext)
		if err := t.Cut(ctx, audioPath, out, seg.Start, seg.Length()); err != nil {
			return paths, err
		}
		paths = append(paths, out)
		sink.Report((i+1)*100/len(plan.Segments), fmt.Sprintf("segment %d/%d", i+1, len(plan.Segments)))
	}
	return paths, nil
}

// collectVideos returns input itself when it is a file, or every file
// under it with a matching extension. baseDir is the directory the
// default output directory is created in.
func collectVideos(input string, extensions []string) (videos []string, baseDir string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, "", &domain.ValidationError{Field: "input", Message: "input path is required"}
	}
	info, err := os.Stat(input)
	if err != nil {
		return nil, "", &domain.ValidationError{Field: "input", Message: err.Error()}
	}
	if !info.IsDir() {
		return []string{input}, filepath.Dir(input), nil
	}

	if len(extensions) == 0 {
		extensions = DefaultVideoExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "audio_output" && path != input {
				return filepath.SkipDir
			}
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("scan %s: %w", input, err)
	}
	if len(videos) == 0 {
		return nil, "", fmt.Errorf("no video files in %s: %w", input, batch.ErrEmptyWorkList)
	}
	return videos, input, nil
}
