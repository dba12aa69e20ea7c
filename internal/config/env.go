package config

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"audio-workbench/internal/domain"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "AWB_"

var (
	reExport = regexp.MustCompile(`^\s*export\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)\s*$`)
	reAssign = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)\s*$`)
)

// LoadEnv loads shell-style env files into the process environment.
// Variables already set are left untouched. Missing files are skipped.
func LoadEnv(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		scan := bufio.NewScanner(f)
		for scan.Scan() {
			line := strings.TrimSpace(scan.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			var key, val string
			if m := reExport.FindStringSubmatch(line); m != nil {
				key, val = m[1], m[2]
			} else if m := reAssign.FindStringSubmatch(line); m != nil {
				key, val = m[1], m[2]
			} else {
				continue
			}
			if _, set := os.LookupEnv(key); set {
				continue
			}
			os.Setenv(key, unquote(strings.TrimSpace(val)))
		}
		f.Close()
	}
}

// LoadDefaultEnv loads AWB_ENV, ~/.audio-workbench/.env and ./.env, in that order.
func LoadDefaultEnv() {
	if p := strings.TrimSpace(os.Getenv(EnvPrefix + "ENV")); p != "" {
		LoadEnv(p)
	}
	LoadEnv(filepath.Join(DefaultDir(), ".env"))
	LoadEnv(".env")
}

func unquote(val string) string {
	if len(val) >= 2 && strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
		v := val[1 : len(val)-1]
		v = strings.ReplaceAll(v, `\\`, `\`)
		return strings.ReplaceAll(v, `\"`, `"`)
	}
	if len(val) >= 2 && strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
		return val[1 : len(val)-1]
	}
	return val
}

// ApplyEnv overlays AWB_* variables onto settings.
func ApplyEnv(s domain.Settings) domain.Settings {
	s.SegmentDuration = parseInt(env("SEGMENT_DURATION"), s.SegmentDuration)
	s.AudioFormat = valueOrDefault(env("AUDIO_FORMAT"), s.AudioFormat)
	s.AudioBitrate = valueOrDefault(env("AUDIO_BITRATE"), s.AudioBitrate)
	s.AudioChannels = parseInt(env("AUDIO_CHANNELS"), s.AudioChannels)
	s.AudioSampleRate = parseInt(env("AUDIO_SAMPLE_RATE"), s.AudioSampleRate)
	s.NoiseReduction = parseBool(env("NOISE_REDUCTION"), s.NoiseReduction)
	s.NormalizeVolume = parseBool(env("NORMALIZE_VOLUME"), s.NormalizeVolume)
	s.MaxWaitTime = parseInt(env("MAX_WAIT_TIME"), s.MaxWaitTime)
	s.PollInterval = parseInt(env("POLL_INTERVAL"), s.PollInterval)
	s.SubmitRetries = parseInt(env("SUBMIT_RETRIES"), s.SubmitRetries)
	s.OutputDir = valueOrDefault(env("OUTPUT_DIR"), s.OutputDir)
	s.SplitNameTemplate = valueOrDefault(env("SPLIT_NAME_TEMPLATE"), s.SplitNameTemplate)
	s.FFmpegPath = valueOrDefault(env("FFMPEG_PATH"), s.FFmpegPath)
	s.FFprobePath = valueOrDefault(env("FFPROBE_PATH"), s.FFprobePath)
	return s
}

// ApplySecretsEnv overlays AWB_* credential variables onto secrets.
func ApplySecretsEnv(s domain.Secrets) domain.Secrets {
	s.Storage.AccessKey = valueOrDefault(env("STORAGE_ACCESS_KEY"), s.Storage.AccessKey)
	s.Storage.SecretKey = valueOrDefault(env("STORAGE_SECRET_KEY"), s.Storage.SecretKey)
	s.Storage.Endpoint = valueOrDefault(env("STORAGE_ENDPOINT"), s.Storage.Endpoint)
	s.Storage.Region = valueOrDefault(env("STORAGE_REGION"), s.Storage.Region)
	s.Storage.Bucket = valueOrDefault(env("STORAGE_BUCKET"), s.Storage.Bucket)
	s.Storage.Prefix = valueOrDefault(env("STORAGE_PREFIX"), s.Storage.Prefix)
	s.Speech.AppID = valueOrDefault(env("SPEECH_APP_ID"), s.Speech.AppID)
	s.Speech.AccessToken = valueOrDefault(env("SPEECH_ACCESS_TOKEN"), s.Speech.AccessToken)
	s.Speech.ResourceID = valueOrDefault(env("SPEECH_RESOURCE_ID"), s.Speech.ResourceID)
	s.Speech.BaseURL = valueOrDefault(env("SPEECH_BASE_URL"), s.Speech.BaseURL)
	return s
}

// Server holds the process-level configuration of the headless binary.
type Server struct {
	Addr          string
	DataDir       string
	LogLevel      slog.Level
	JWTSecret     string
	CORSOrigins   []string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MirrorTTL     time.Duration
	HistoryLimit  int
}

// LoadServer reads the headless server configuration from AWB_* variables.
func LoadServer() Server {
	logLevel := slog.LevelInfo
	switch strings.ToLower(env("LOG_LEVEL")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var origins []string
	for _, o := range strings.Split(valueOrDefault(env("CORS_ORIGINS"), "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Server{
		Addr:          valueOrDefault(env("ADDR"), "127.0.0.1:8089"),
		DataDir:       valueOrDefault(env("DATA_DIR"), DefaultDir()),
		LogLevel:      logLevel,
		JWTSecret:     env("JWT_SECRET"),
		CORSOrigins:   origins,
		RedisAddr:     env("REDIS_ADDR"),
		RedisPassword: env("REDIS_PASSWORD"),
		RedisDB:       parseInt(env("REDIS_DB"), 0),
		MirrorTTL:     parseDuration(env("MIRROR_TTL"), 24*time.Hour),
		HistoryLimit:  parseInt(env("HISTORY_LIMIT"), 50),
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
