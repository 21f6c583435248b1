package realtime

// Client frames, sent over the socket as JSON.

// clientFrame is the base shape of every frame sent to the service.
type clientFrame struct {
	Type string `json:"type"`
}

// sessionUpdateFrame configures the session after connecting.
// TurnDetection has no omitempty: an explicit null disables server VAD.
type sessionUpdateFrame struct {
	clientFrame
	Session sessionBody `json:"session"`
}

type sessionBody struct {
	Modalities        []string       `json:"modalities"`
	Voice             string         `json:"voice"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     map[string]any `json:"turn_detection"`
	Tools             []any          `json:"tools"`
	ToolChoice        string         `json:"tool_choice"`
	Instructions      string         `json:"instructions,omitempty"`
}

// audioAppendFrame carries one chunk of base64-encoded audio.
type audioAppendFrame struct {
	clientFrame
	Audio string `json:"audio"`
}

// Server frame type tags the receive loop acts on. Everything else is
// ignored.
const (
	typeError           = "error"
	typeTextDelta       = "response.text.delta"
	typeOutputTextDelta = "response.output_text.delta"
	typeResponseDone    = "response.done"
)

// deltaTypes are the server frames whose delta fields aggregate into the
// returned text.
var deltaTypes = map[string]bool{
	typeTextDelta:       true,
	typeOutputTextDelta: true,
}
