// Package summary renders batch-level artifacts from a finished batch.
package summary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"audio-workbench/internal/domain"
	"audio-workbench/internal/transcribe"
)

// Artifact file names written into the batch output directory.
const (
	TranscriptsFile = "all_transcripts.txt"
	ResultsFile     = "batch_results.json"
	URLListFile     = "uploaded_urls.txt"
)

// Output keys shared by lane pipelines and summary renderers.
const (
	OutputText     = "text"
	OutputJSON     = "json"
	OutputURL      = "url"
	OutputAudio    = "audio"
	OutputSegments = "segments"
	OutputMetadata = "metadata"
)

const failureMarker = "transcription failed or output missing"

// WriteTranscripts renders all_transcripts.txt: a header followed by the
// full text of every item in input order, or a failure marker.
func WriteTranscripts(dir string, result domain.BatchResult, reference, now time.Time) (string, error) {
	var b strings.Builder
	b.WriteString("# All transcripts\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Reference time: %s\n", reference.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "File count: %d\n\n", len(result.Items))
	b.WriteString("## Full text per file\n\n")

	for _, item := range result.Items {
		fmt.Fprintf(&b, "### %s\n\n", item.Name)
		b.WriteString(itemText(item))
		b.WriteString("\n\n")
	}

	path := filepath.Join(dir, TranscriptsFile)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", TranscriptsFile, err)
	}
	return path, nil
}

// itemText returns the full transcript text of a successful item, taken
// from the item itself before its text file.
func itemText(item domain.WorkItem) string {
	if item.Status != domain.ItemStatusSuccess {
		return failureMarker
	}
	if text := strings.TrimSpace(item.Text); text != "" {
		return text
	}
	if path := item.Outputs[OutputText]; path != "" {
		text, err := fullTextSection(path)
		if err != nil {
			return fmt.Sprintf("failed to read transcript: %v", err)
		}
		if text != "" {
			return text
		}
	}
	return failureMarker
}

// fullTextSection extracts the lines after the full text heading.
func fullTextSection(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var (
		b       strings.Builder
		inside  bool
		scanner = bufio.NewScanner(f)
	)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, transcribe.FullTextSection) {
			inside = true
			continue
		}
		if inside {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// WriteResults writes the batch report as indented JSON.
func WriteResults(dir string, result domain.BatchResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode batch results: %w", err)
	}
	path := filepath.Join(dir, ResultsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ResultsFile, err)
	}
	return path, nil
}

// WriteURLList writes one public URL per successful upload, in input
// order. Failed items are listed as comments.
func WriteURLList(dir string, result domain.BatchResult) (string, error) {
	var b strings.Builder
	for _, item := range result.Items {
		if url := item.Outputs[OutputURL]; item.Status == domain.ItemStatusSuccess && url != "" {
			b.WriteString(url + "\n")
			continue
		}
		fmt.Fprintf(&b, "# failed: %s (%s)\n", item.Name, item.Message)
	}

	path := filepath.Join(dir, URLListFile)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", URLListFile, err)
	}
	return path, nil
}

// URLs returns the public URLs of successful uploads in input order.
func URLs(result domain.BatchResult) []string {
	var out []string
	for _, item := range result.Items {
		if url := item.Outputs[OutputURL]; item.Status == domain.ItemStatusSuccess && url != "" {
			out = append(out, url)
		}
	}
	return out
}

// ExtractionEntry is one video row of the extraction summary.
type ExtractionEntry struct {
	Video         string `json:"video"`
	Audio         string `json:"audio,omitempty"`
	Status        string `json:"status"`
	SegmentsCount int    `json:"segmentsCount"`
	Message       string `json:"message,omitempty"`
}

// ExtractionSummary is the directory-level extraction report.
type ExtractionSummary struct {
	ProcessedTime   time.Time         `json:"processedTime"`
	InputDirectory  string            `json:"inputDirectory"`
	OutputDirectory string            `json:"outputDirectory"`
	VideoCount      int               `json:"videoCount"`
	Results         []ExtractionEntry `json:"results"`
}

// WriteExtraction writes extraction_summary_{YYYYmmdd_HHMMSS}.json. The
// segment count of each item is read from its OutputSegments entry.
func WriteExtraction(dir, input string, result domain.BatchResult, now time.Time) (string, error) {
	report := ExtractionSummary{
		ProcessedTime:   now,
		InputDirectory:  input,
		OutputDirectory: dir,
		VideoCount:      len(result.Items),
		Results:         make([]ExtractionEntry, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		entry := ExtractionEntry{
			Video:   item.Source,
			Audio:   item.Outputs[OutputAudio],
			Status:  string(item.Status),
			Message: item.Message,
		}
		if n, err := strconv.Atoi(item.Outputs[OutputSegments]); err == nil {
			entry.SegmentsCount = n
		}
		report.Results = append(report.Results, entry)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode extraction summary: %w", err)
	}
	path := filepath.Join(dir, "extraction_summary_"+now.Format("20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write extraction summary: %w", err)
	}
	return path, nil
}
