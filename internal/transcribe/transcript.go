package transcribe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Utterance is one timed sentence; times are milliseconds.
type Utterance struct {
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Text      string `json:"text"`
}

// Response is the completed query payload.
type Response struct {
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
	Result struct {
		Text       string      `json:"text"`
		Utterances []Utterance `json:"utterances"`
	} `json:"result"`
}

// Transcript is a decoded response together with the raw payload.
type Transcript struct {
	Response
	Raw json.RawMessage `json:"-"`
}

// DurationMS returns the audio length reported by the service.
func (t Transcript) DurationMS() int64 {
	return t.AudioInfo.Duration
}

// decodeTranscript parses a completed query body.
func decodeTranscript(body []byte) (Transcript, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Transcript{}, &ParseError{Message: "decode transcript", Err: err}
	}
	return Transcript{Response: resp, Raw: append(json.RawMessage(nil), body...)}, nil
}

// Heading and section titles of the exported text file.
const (
	textTitle        = "# Transcription"
	timestampSection = "## Timestamped text"
	FullTextSection  = "## Full text"
	noFullText       = "## Full text not found"
)

// Save writes outputBase+".json" (raw payload, indented) and
// outputBase+".txt" (timestamped lines then the full text).
func Save(t Transcript, outputBase string, now time.Time) (jsonPath, textPath string, err error) {
	outputBase = strings.TrimSuffix(outputBase, filepath.Ext(outputBase))
	if err := os.MkdirAll(filepath.Dir(outputBase), 0o755); err != nil {
		return "", "", fmt.Errorf("create transcript directory: %w", err)
	}

	jsonPath = outputBase + ".json"
	var pretty bytes.Buffer
	if len(t.Raw) == 0 || json.Indent(&pretty, t.Raw, "", "  ") != nil {
		pretty.Reset()
		raw, err := json.MarshalIndent(t.Response, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("encode transcript: %w", err)
		}
		pretty.Write(raw)
	}
	if err := os.WriteFile(jsonPath, pretty.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", jsonPath, err)
	}

	textPath = outputBase + ".txt"
	if err := os.WriteFile(textPath, []byte(RenderText(t, now)), 0o644); err != nil {
		return jsonPath, "", fmt.Errorf("write %s: %w", textPath, err)
	}
	return jsonPath, textPath, nil
}

// RenderText formats the transcript as human-readable text.
func RenderText(t Transcript, now time.Time) string {
	var b strings.Builder
	b.WriteString(textTitle + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))

	if len(t.Result.Utterances) > 0 {
		b.WriteString(timestampSection + "\n\n")
		for _, u := range t.Result.Utterances {
			fmt.Fprintf(&b, "[%s --> %s] %s\n", FormatClock(u.StartTime), FormatClock(u.EndTime), u.Text)
		}
		b.WriteString("\n")
	}

	if t.Result.Text != "" {
		b.WriteString(FullTextSection + "\n\n")
		b.WriteString(t.Result.Text)
		b.WriteString("\n")
	} else {
		b.WriteString(noFullText + "\n")
	}
	return b.String()
}

// FormatClock renders milliseconds as HH:MM:SS.
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
