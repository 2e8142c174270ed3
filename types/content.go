package types

// ContentPartKind tags the variant carried by a ContentPart.
type ContentPartKind string

const (
	ContentText  ContentPartKind = "text"
	ContentImage ContentPartKind = "image"
	ContentAudio ContentPartKind = "audio"
	ContentFile  ContentPartKind = "file"
)

// ContentPart is a tagged variant of the kinds of content a request or
// response can carry. Only the field matching Kind is meaningful.
type ContentPart struct {
	Kind ContentPartKind `json:"kind"`

	Text string `json:"text,omitempty"`

	// Bytes and URI are mutually exclusive carriers for image/audio/file
	// parts; adapters decide which they accept.
	Bytes []byte `json:"bytes,omitempty"`
	URI   string `json:"uri,omitempty"`
	Mime  string `json:"mime,omitempty"`
}

func TextPart(s string) ContentPart {
	return ContentPart{Kind: ContentText, Text: s}
}

func ImagePart(bytes []byte, uri, mime string) ContentPart {
	return ContentPart{Kind: ContentImage, Bytes: bytes, URI: uri, Mime: mime}
}

func AudioPart(bytes []byte, uri, mime string) ContentPart {
	return ContentPart{Kind: ContentAudio, Bytes: bytes, URI: uri, Mime: mime}
}

func FilePart(uri string) ContentPart {
	return ContentPart{Kind: ContentFile, URI: uri}
}

// Task enumerates the kinds of generation a call can request.
type Task string

const (
	TaskChat     Task = "chat"
	TaskTTS      Task = "tts"
	TaskASR      Task = "asr"
	TaskImageGen Task = "image_gen"
	TaskVideoGen Task = "video_gen"
)

// GenConfig carries per-call overrides. Fields are explicit, not a
// free-form keyword bag (spec §9 rejects dynamic-keyword call overrides).
type GenConfig struct {
	Task            Task     `json:"task"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
	VoiceConfig     string   `json:"voice_config,omitempty"`
	ImageSize       string   `json:"image_size,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	ThoughtMode     bool     `json:"thought_mode,omitempty"`
	Stream          bool     `json:"stream,omitempty"`
	FullResponse    bool     `json:"full_response"`
	OptimizeImages  bool     `json:"optimize_images,omitempty"`
}

// DefaultGenConfig returns a chat GenConfig with full_response=true, the
// spec-mandated default for structured calls (§6).
func DefaultGenConfig() GenConfig {
	return GenConfig{Task: TaskChat, FullResponse: true}
}
