package config

import (
	"os"
	"path/filepath"

	"audio-workbench/internal/domain"
	"audio-workbench/internal/segment"
)

// AppDirName is the per-user directory holding settings, secrets and history.
const AppDirName = ".audio-workbench"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		SegmentDuration:   3600,
		AudioFormat:       "mp3",
		AudioBitrate:      "128k",
		AudioChannels:     1,
		AudioSampleRate:   16000,
		NoiseReduction:    false,
		NormalizeVolume:   true,
		MaxWorkers:        3,
		MaxWaitTime:       1800,
		PollInterval:      5,
		SubmitRetries:     3,
		OutputDir:         filepath.Join(homeDir, "Documents", "AudioWorkbench"),
		SplitNameTemplate: segment.DefaultNameTemplate,
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
	}
}

// DefaultDir returns ~/.audio-workbench, or a relative fallback when the
// home directory is unknown.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return AppDirName
	}
	return filepath.Join(homeDir, AppDirName)
}
