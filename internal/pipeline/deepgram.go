package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/voicekit/agent/internal/audio"
	"github.com/voicekit/agent/internal/metrics"
)

const (
	deepgramAPIHost    = "api.deepgram.com"
	deepgramKeepAlive  = 5 * time.Second
	deepgramCloseGrace = 3 * time.Second
)

// DeepgramClient reaches the Deepgram hosted speech-to-text API. It
// implements both Transcriber (prerecorded REST) and LiveTranscriber
// (streaming WebSocket with service-side turn detection).
type DeepgramClient struct {
	apiKey         string
	model          string
	language       string
	utteranceEndMs int
	httpClient     *http.Client
}

// NewDeepgramClient creates a client for the given model and language.
func NewDeepgramClient(apiKey, model, language string, utteranceEndMs, poolSize int) *DeepgramClient {
	return &DeepgramClient{
		apiKey:         apiKey,
		model:          model,
		language:       language,
		utteranceEndMs: utteranceEndMs,
		httpClient:     NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Transcribe sends one utterance to the prerecorded endpoint.
func (c *DeepgramClient) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*STTResult, error) {
	start := time.Now()

	q := url.Values{}
	q.Set("model", c.model)
	q.Set("language", c.language)
	q.Set("smart_format", "true")
	endpoint := "https://" + deepgramAPIHost + "/v1/listen?" + q.Encode()

	wav := audio.SamplesToWAV(samples, sampleRate)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, fmt.Errorf("create deepgram request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deepgram status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode deepgram response: %w", err)
	}

	text := ""
	if len(result.Results.Channels) > 0 && len(result.Results.Channels[0].Alternatives) > 0 {
		text = result.Results.Channels[0].Alternatives[0].Transcript
	}
	return &STTResult{
		Text:      text,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

// OpenStream dials the live endpoint with exponential backoff and starts
// the reader and keepalive goroutines. Events are delivered sequentially
// from the reader goroutine.
func (c *DeepgramClient) OpenStream(ctx context.Context, sampleRate int, onEvent STTCallback) (STTStream, error) {
	q := url.Values{}
	q.Set("model", c.model)
	q.Set("language", c.language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("utterance_end_ms", strconv.Itoa(c.utteranceEndMs))
	q.Set("smart_format", "true")
	endpoint := "wss://" + deepgramAPIHost + "/v1/listen?" + q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+c.apiKey)

	var conn *websocket.Conn
	dial := func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, endpoint, header)
		if err != nil {
			metrics.STTReconnects.Inc()
			slog.Warn("deepgram dial failed, retrying", "error", err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	s := &deepgramStream{
		conn:    conn,
		onEvent: onEvent,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go s.readLoop()
	go s.keepAlive()
	return s, nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	onEvent STTCallback

	writeMu  sync.Mutex
	inSpeech bool // reader goroutine only

	done     chan struct{} // closed when readLoop returns
	stop     chan struct{} // closed by Close to end keepalive
	stopOnce sync.Once
}

// Write sends one PCM16 chunk to the service.
func (s *deepgramStream) Write(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("deepgram write: %w", err)
	}
	return nil
}

// Close tells the service the audio is finished, waits briefly for trailing
// events, then tears the socket down.
func (s *deepgramStream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	s.writeMu.Unlock()

	select {
	case <-s.done:
	case <-time.After(deepgramCloseGrace):
	}
	s.conn.Close()
	return err
}

func (s *deepgramStream) keepAlive() {
	ticker := time.NewTicker(deepgramKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// deepgramMessage covers the live API message types we react to.
type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop: // expected close
			default:
				s.onEvent(STTEvent{Type: STTError, Err: fmt.Errorf("deepgram read: %w", err)})
			}
			return
		}

		var msg deepgramMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			slog.Warn("deepgram message parse", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

// dispatch maps service messages onto stream events. SpeechStarted arrives
// repeatedly during one utterance; only the first opens the turn.
func (s *deepgramStream) dispatch(msg deepgramMessage) {
	switch msg.Type {
	case "SpeechStarted":
		if s.inSpeech {
			return
		}
		s.inSpeech = true
		s.onEvent(STTEvent{Type: STTUtteranceStart})

	case "UtteranceEnd":
		if !s.inSpeech {
			return
		}
		s.inSpeech = false
		s.onEvent(STTEvent{Type: STTUtteranceEnd})

	case "Results":
		text := ""
		if len(msg.Channel.Alternatives) > 0 {
			text = msg.Channel.Alternatives[0].Transcript
		}
		if msg.SpeechFinal && s.inSpeech {
			s.inSpeech = false
			s.onEvent(STTEvent{Type: STTUtteranceEnd})
		}
		if text == "" {
			return
		}
		s.onEvent(STTEvent{
			Type:      STTTranscript,
			Text:      text,
			Final:     msg.IsFinal,
			EndOfTurn: msg.SpeechFinal,
		})
	}
}
