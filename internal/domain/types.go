package domain

import "time"

// Lane names one independent background workflow. At most one task runs per lane.
type Lane string

const (
	LaneExtraction    Lane = "extraction"
	LaneSplitting     Lane = "splitting"
	LaneUpload        Lane = "upload"
	LaneTranscription Lane = "transcription"
)

// Lanes lists every lane in display order.
var Lanes = []Lane{LaneExtraction, LaneSplitting, LaneUpload, LaneTranscription}

// Valid reports whether l names a known lane.
func (l Lane) Valid() bool {
	for _, lane := range Lanes {
		if lane == l {
			return true
		}
	}
	return false
}

// TaskStatus tracks the lifecycle of one lane task.
type TaskStatus string

const (
	TaskStatusIdle      TaskStatus = "idle"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task stores the identity, lane and lifecycle status of a lane task.
type Task struct {
	ID      string     `json:"id"`
	Lane    Lane       `json:"lane"`
	Status  TaskStatus `json:"status"`
	Percent int        `json:"percent"`
	Message string     `json:"message,omitempty"`
	// CancelRequested is set once Cancel was called for a running task.
	CancelRequested bool      `json:"cancelRequested,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	SegmentDuration   int    `json:"segmentDuration"`
	AudioFormat       string `json:"audioFormat"`
	AudioBitrate      string `json:"audioBitrate"`
	AudioChannels     int    `json:"audioChannels"`
	AudioSampleRate   int    `json:"audioSampleRate"`
	NoiseReduction    bool   `json:"noiseReduction"`
	NormalizeVolume   bool   `json:"normalizeVolume"`
	MaxWorkers        int    `json:"maxWorkers"`
	MaxWaitTime       int    `json:"maxWaitTime"`
	PollInterval      int    `json:"pollInterval"`
	SubmitRetries     int    `json:"submitRetries"`
	OutputDir         string `json:"outputDir"`
	SplitNameTemplate string `json:"splitNameTemplate"`
	FFmpegPath        string `json:"ffmpegPath"`
	FFprobePath       string `json:"ffprobePath"`
	LastInputDir      string `json:"lastInputDir,omitempty"`
}

// StorageCredentials configures the S3-compatible object store.
type StorageCredentials struct {
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix,omitempty"`
}

// SpeechCredentials configures the remote transcription service.
type SpeechCredentials struct {
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`
	ResourceID  string `json:"resourceId,omitempty"`
	BaseURL     string `json:"baseUrl,omitempty"`
}

// Secrets holds credentials persisted apart from regular settings.
type Secrets struct {
	Storage StorageCredentials `json:"storage"`
	Speech  SpeechCredentials  `json:"speech"`
}

// Validate checks that every field needed to reach the object store is set.
func (c StorageCredentials) Validate() error {
	switch {
	case c.AccessKey == "":
		return &ValidationError{Field: "storage.accessKey", Message: "access key is required"}
	case c.SecretKey == "":
		return &ValidationError{Field: "storage.secretKey", Message: "secret key is required"}
	case c.Endpoint == "":
		return &ValidationError{Field: "storage.endpoint", Message: "endpoint is required"}
	case c.Bucket == "":
		return &ValidationError{Field: "storage.bucket", Message: "bucket is required"}
	}
	return nil
}

// Validate checks that the transcription service credentials are present.
func (c SpeechCredentials) Validate() error {
	if c.AppID == "" {
		return &ValidationError{Field: "speech.appId", Message: "app id is required"}
	}
	if c.AccessToken == "" {
		return &ValidationError{Field: "speech.accessToken", Message: "access token is required"}
	}
	return nil
}
