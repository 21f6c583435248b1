// Package realtime implements the streaming model adapter: it sends audio
// to a realtime WebSocket service, records a strictly ordered event log,
// and returns the aggregated response text.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"

	"github.com/verdictlab/verdict/audio"
	"github.com/verdictlab/verdict/dag"
	"github.com/verdictlab/verdict/logger"
	"github.com/verdictlab/verdict/models"
)

// ErrMisconfigured is returned when adapter credentials or endpoint
// fields are missing.
var ErrMisconfigured = errors.New("realtime adapter misconfigured")

// ErrInvalidInput is returned when a case supplies no audio.
var ErrInvalidInput = errors.New("invalid realtime input")

// DefaultTimeout bounds the connection, each receive, and the close.
const DefaultTimeout = 60 * time.Second

// EventsKey is the context key under which the adapter stores its event
// log after every invocation.
const EventsKey = "realtime_events"

func init() {
	models.RegisterFactory("AZURE_OPEN_AI_REALTIME", func(desc models.Descriptor) (models.Model, error) {
		return New(desc.Name, desc.Config)
	})
}

// Config holds the required connection fields. Everything else in the
// descriptor participates in session-setting resolution.
type Config struct {
	Endpoint   string `validate:"required"`
	API        string `validate:"required"`
	Deployment string `validate:"required"`
	Key        string `validate:"required"`
	TimeoutS   float64
}

var validate = validator.New()

// Adapter streams audio cases to a realtime service. Per-invocation state
// (socket, event log, sequence counter) is confined to each Infer call,
// so one adapter instance may serve concurrent cases.
type Adapter struct {
	name         string
	cfg          Config
	raw          map[string]any
	newTransport func() Transport
}

// New builds an adapter from a descriptor config mapping.
func New(name string, raw map[string]any) (*Adapter, error) {
	cfg := Config{
		Endpoint:   stringValue(raw, "endpoint"),
		API:        stringValue(raw, "api"),
		Deployment: stringValue(raw, "deployment"),
		Key:        stringValue(raw, "key"),
	}
	if v, ok := raw["timeout_s"].(float64); ok {
		cfg.TimeoutS = v
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	a := &Adapter{name: name, cfg: cfg, raw: raw}
	a.newTransport = func() Transport { return newWSTransport(a.timeout()) }
	return a, nil
}

func (a *Adapter) timeout() time.Duration {
	if a.cfg.TimeoutS > 0 {
		return time.Duration(a.cfg.TimeoutS * float64(time.Second))
	}
	return DefaultTimeout
}

// url builds the WebSocket endpoint: the https scheme is rewritten to
// wss and the api-version and deployment are passed as query parameters.
func (a *Adapter) url() string {
	endpoint := strings.TrimSuffix(a.cfg.Endpoint, "/")
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	return fmt.Sprintf("%s/openai/realtime?api-version=%s&deployment=%s",
		endpoint, a.cfg.API, a.cfg.Deployment)
}

// Metadata returns the adapter configuration with the key removed. The
// name and type labels take precedence over descriptor fields.
func (a *Adapter) Metadata() map[string]any {
	meta := map[string]any{"name": a.name, "type": "AZURE_OPEN_AI_REALTIME"}
	if err := mergo.Merge(&meta, a.raw); err != nil {
		logger.Warn("realtime: metadata merge failed", "error", err)
	}
	delete(meta, "key")
	return meta
}

// Infer streams the case audio through the protocol state machine and
// returns the aggregated text. The ordered event log is always stored at
// the context's EventsKey, on every exit path. Messages are ignored; the
// realtime service consumes audio only.
func (a *Adapter) Infer(ctx context.Context, _ []models.Message, c *dag.Context) (string, error) {
	log := newEventLog()
	if c != nil {
		defer func() { c.Set(EventsKey, log.snapshot()) }()
	}

	audioBytes, err := caseAudio(c)
	if err != nil {
		return "", err
	}

	cfg, err := resolveSettings(c, a.raw)
	if err != nil {
		return "", err
	}

	logger.Debug("realtime: starting session",
		"model", a.name,
		"url", a.url(),
		"auth", logger.Redact("api-key: "+a.cfg.Key))

	s := &session{
		transport: a.newTransport(),
		log:       log,
		timeout:   a.timeout(),
	}
	return s.run(ctx, a.url(), a.headers(), cfg, audioBytes, convertRequested(c))
}

func (a *Adapter) headers() http.Header {
	header := http.Header{}
	header.Set("api-key", a.cfg.Key)
	return header
}

// caseAudio resolves the audio source: explicit bytes first, then a file
// path. Missing audio fails before any connection is opened.
func caseAudio(c *dag.Context) ([]byte, error) {
	if c != nil {
		if v, ok := c.Get("audio_bytes"); ok {
			if b, isBytes := v.([]byte); isBytes && len(b) > 0 {
				return b, nil
			}
		}
		if v, ok := c.Get("audio_file"); ok {
			path, isString := v.(string)
			if !isString || path == "" {
				return nil, fmt.Errorf("%w: audio_file must be a non-empty path", ErrInvalidInput)
			}
			data, err := os.ReadFile(path) // #nosec G304 -- case-supplied fixture path
			if err != nil {
				return nil, fmt.Errorf("%w: read audio file: %v", ErrInvalidInput, err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: case has neither audio_bytes nor audio_file", ErrInvalidInput)
}

func convertRequested(c *dag.Context) bool {
	if c == nil {
		return false
	}
	v, ok := c.Get("convert_to_pcm16")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// protocol states, in transition order.
type state int

const (
	stateConnecting state = iota
	stateSessionConfigured
	stateAudioStreaming
	stateCommitted
	stateResponseInFlight
	stateDone
)

// session is the per-invocation protocol driver.
type session struct {
	transport Transport
	log       *eventLog
	timeout   time.Duration
	state     state
	text      strings.Builder
	closed    bool
}

// run walks the state machine: connect, configure the session, stream the
// audio, commit, request a response, then drain the receive loop. The
// socket is closed on every exit path.
func (s *session) run(ctx context.Context, url string, header http.Header, cfg *settings, audioBytes []byte, convert bool) (string, error) {
	if err := s.transport.Connect(ctx, url, header); err != nil {
		return "", err
	}
	defer s.close()
	s.log.append(Event{Type: "session.connected"})

	if err := s.configure(cfg); err != nil {
		return "", err
	}
	if err := s.streamAudio(audioBytes, convert); err != nil {
		return "", err
	}
	if err := s.commit(); err != nil {
		return "", err
	}
	s.receiveLoop()
	return s.text.String(), nil
}

func (s *session) configure(cfg *settings) error {
	frame := sessionUpdateFrame{
		clientFrame: clientFrame{Type: "session.update"},
		Session: sessionBody{
			Modalities:        cfg.Modalities,
			Voice:             cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection:     cfg.TurnDetection,
			Tools:             []any{},
			ToolChoice:        "auto",
			Instructions:      cfg.Instructions,
		},
	}
	if err := s.transport.Send(frame); err != nil {
		return fmt.Errorf("send session.update: %w", err)
	}
	s.log.append(Event{Type: "session.update"})
	s.state = stateSessionConfigured
	return nil
}

// streamAudio optionally transcodes the audio, then sends it as a single
// append frame. The event records the sent size only; audio bytes never
// enter the log.
func (s *session) streamAudio(audioBytes []byte, convert bool) error {
	payload := audioBytes
	if convert {
		converted, err := audio.ToPCM16Mono24k(audioBytes)
		if err != nil {
			s.log.append(Event{
				Type:    "audio.convert.error",
				Message: map[string]any{"error": err.Error()},
			})
		} else {
			payload = converted
			s.log.append(Event{
				Type:     "audio.converted.pcm16_24k",
				Size:     sizeOf(len(converted)),
				Redacted: true,
			})
		}
	} else {
		s.log.append(Event{Type: "audio.convert.skip"})
	}

	frame := audioAppendFrame{
		clientFrame: clientFrame{Type: "input_audio_buffer.append"},
		Audio:       base64.StdEncoding.EncodeToString(payload),
	}
	if err := s.transport.Send(frame); err != nil {
		return fmt.Errorf("send audio append: %w", err)
	}
	s.log.markAudioStart(Event{
		Type:     "input_audio_buffer.append",
		Size:     sizeOf(len(payload)),
		Redacted: true,
	})
	s.state = stateAudioStreaming
	return nil
}

func (s *session) commit() error {
	if err := s.transport.Send(clientFrame{Type: "input_audio_buffer.commit"}); err != nil {
		return fmt.Errorf("send commit: %w", err)
	}
	s.log.append(Event{Type: "input_audio_buffer.commit"})
	s.state = stateCommitted

	if err := s.transport.Send(clientFrame{Type: "response.create"}); err != nil {
		return fmt.Errorf("send response.create: %w", err)
	}
	s.log.append(Event{Type: "response.create"})
	s.state = stateResponseInFlight
	return nil
}

// receiveLoop drains server frames until response.done or a receive
// timeout. Protocol errors are recorded in the event log, never raised;
// the aggregated text so far is what the caller gets.
func (s *session) receiveLoop() {
	for s.state != stateDone {
		data, binary, err := s.transport.Receive(s.timeout)
		if err != nil {
			if errors.Is(err, ErrReceiveTimeout) {
				s.log.append(Event{Type: "error.timeout"})
			} else {
				s.log.append(Event{
					Type:    "response.error",
					Message: map[string]any{"error": err.Error()},
				})
			}
			s.state = stateDone
			return
		}
		if binary {
			s.log.append(Event{Type: "binary", Size: sizeOf(len(data)), Redacted: true})
			continue
		}

		var msg map[string]any
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		msgType, _ := msg["type"].(string)
		switch {
		case msgType == typeError:
			s.log.append(Event{Type: "response.error", Message: msg})
		case deltaTypes[msgType]:
			s.log.append(Event{Type: msgType, Message: msg})
			if delta, ok := msg["delta"].(string); ok {
				s.text.WriteString(delta)
			}
		case msgType == typeResponseDone:
			s.log.append(Event{Type: typeResponseDone, Message: msg})
			s.closeRecordingError()
			s.state = stateDone
		}
	}
}

// closeRecordingError closes the socket after response.done and records
// a ws.close_error event when the close itself fails.
func (s *session) closeRecordingError() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.transport.Close(); err != nil {
		s.log.append(Event{
			Type:    "ws.close_error",
			Message: map[string]any{"error": err.Error()},
		})
		logger.Warn("realtime: close failed", "error", err)
	}
}

func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.transport.Close()
}

func stringValue(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
