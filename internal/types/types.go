// Package types holds domain types shared across the gateway and worker
// processes: job payloads, progress events, styles, and detection tiers.
package types

import "time"

// JobKind identifies one of the four job payload shapes the queue carries.
type JobKind string

const (
	JobAnalyze          JobKind = "analyze"
	JobDownloadSource   JobKind = "download_source"
	JobReprocess        JobKind = "reprocess"
	JobRenderSceneStyle JobKind = "render_scene_style"
)

// Style is the tagged variant driving the renderer registry (design note:
// "ad-hoc polymorphism for styles").
type Style string

const (
	StyleSplit                 Style = "split"
	StyleIntelligent           Style = "intelligent"
	StyleIntelligentSplit      Style = "intelligent_split"
	StyleIntelligentSpeaker    Style = "intelligent_speaker"
	StyleIntelligentSplitSpeaker Style = "intelligent_split_speaker"
	StyleStreamer              Style = "streamer"
	StyleStreamerSplit         Style = "streamer_split"
	StyleStreamerTopScenes     Style = "streamer_top_scenes"
)

// studioOnlyStyles require a Studio plan; proOnlyStyles require Pro or above.
var studioOnlyStyles = map[Style]bool{
	StyleIntelligentSpeaker:      true,
	StyleIntelligentSplitSpeaker: true,
}

var proOnlyStyles = map[Style]bool{
	StyleIntelligent:      true,
	StyleIntelligentSplit: true,
}

// ContainsStudioOnlyStyles reports whether any style in the set requires Studio.
func ContainsStudioOnlyStyles(styles []Style) bool {
	for _, s := range styles {
		if studioOnlyStyles[s] {
			return true
		}
	}
	return false
}

// ContainsProOnlyStyles reports whether any style in the set requires Pro or above.
func ContainsProOnlyStyles(styles []Style) bool {
	for _, s := range styles {
		if proOnlyStyles[s] {
			return true
		}
	}
	return false
}

// DetectionTier gates both plan features and renderer behavior.
type DetectionTier string

const (
	TierNone         DetectionTier = "none"
	TierBasic        DetectionTier = "basic"
	TierSpeakerAware DetectionTier = "speaker_aware"
	TierMotionAware  DetectionTier = "motion_aware"
	TierCinematic    DetectionTier = "cinematic"
)

// CropMode and AspectRatio are request-level rendering parameters.
type CropMode string

const (
	CropModeNone CropMode = "none"
	CropModeAuto CropMode = "auto"
)

type AspectRatio string

const AspectRatioDefault AspectRatio = "9:16"

// Highlight is an LLM-proposed scene, immutable once an Analyze job persists it.
type Highlight struct {
	ID         uint32
	Title      string
	Start      string
	End        string
	PadBefore  float64
	PadAfter   float64
	Category   string
}

// Job is the envelope the queue carries; Payload's concrete shape depends on Kind.
type Job struct {
	JobID     string
	Kind      JobKind
	UserID    string
	CreatedAt time.Time
	Payload   any
}

// AnalyzeJob starts highlight extraction for a freshly submitted video URL.
type AnalyzeJob struct {
	JobID               string
	UserID               string
	DraftID              string
	VideoURL             string
	PromptInstructions   *string
}

// DownloadSourceJob performs a single-flight download into the source cache.
type DownloadSourceJob struct {
	JobID    string
	UserID   string
	VideoID  string
	VideoURL string
}

// ReprocessJob fans out RenderSceneStyle jobs for a set of scenes/styles, or
// drives the top-scenes compilation pass when Styles contains StreamerTopScenes.
type ReprocessJob struct {
	JobID           string
	UserID          string
	VideoID         string
	SceneIDs        []uint32
	Styles          []Style
	CropMode        CropMode
	TargetAspect    AspectRatio
	CutSilentParts  bool
}

// RenderSceneStyleJob renders exactly one (scene, style) pair into a clip.
type RenderSceneStyleJob struct {
	JobID        string
	UserID       string
	VideoID      string
	SceneID      uint32
	Style        Style
	CropMode     CropMode
	TargetAspect AspectRatio
}

// ProgressEventType enumerates the WS/pub-sub progress event variants.
type ProgressEventType string

const (
	EventLog            ProgressEventType = "log"
	EventProgress       ProgressEventType = "progress"
	EventSceneStarted   ProgressEventType = "scene_started"
	EventSceneCompleted ProgressEventType = "scene_completed"
	EventClipProgress   ProgressEventType = "clip_progress"
	EventClipUploaded   ProgressEventType = "clip_uploaded"
	EventDone           ProgressEventType = "done"
	EventError          ProgressEventType = "error"
)

// ProgressEvent is the payload published on a job's progress channel.
type ProgressEvent struct {
	Type          ProgressEventType `json:"type"`
	Text          string            `json:"text,omitempty"`
	Percent       int               `json:"percent,omitempty"`
	SceneID       uint32            `json:"scene_id,omitempty"`
	Style         Style             `json:"style,omitempty"`
	Credits       uint32            `json:"credits,omitempty"`
	URL           string            `json:"url,omitempty"`
	ThumbnailURL  string            `json:"thumbnail_url,omitempty"`
	VideoID       string            `json:"video_id,omitempty"`
}

func LogEvent(text string) ProgressEvent { return ProgressEvent{Type: EventLog, Text: text} }
func ProgressPercent(p int) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Percent: p}
}
func DoneEvent(videoID string) ProgressEvent {
	return ProgressEvent{Type: EventDone, VideoID: videoID}
}
func ErrorEvent(text string) ProgressEvent { return ProgressEvent{Type: EventError, Text: text} }

// VideoStatus tracks the lifecycle of a Video document.
type VideoStatus string

const (
	VideoProcessing VideoStatus = "processing"
	VideoAnalyzed   VideoStatus = "analyzed"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

// ClipStatus tracks the lifecycle of a Clip document.
type ClipStatus string

const (
	ClipProcessing ClipStatus = "processing"
	ClipCompleted  ClipStatus = "completed"
	ClipFailed     ClipStatus = "failed"
)

// SourceCacheStatus is the status machine driving the source-video cache's
// download lifecycle.
type SourceCacheStatus string

const (
	SourcePending     SourceCacheStatus = "pending"
	SourceDownloading SourceCacheStatus = "downloading"
	SourceReady       SourceCacheStatus = "ready"
	SourceFailed      SourceCacheStatus = "failed"
	SourceExpired     SourceCacheStatus = "expired"
)
