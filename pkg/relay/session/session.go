// Package session runs one relay conversation over a websocket connection.
//
// A session owns three goroutines: the caller's event loop (Run), a read
// loop feeding inbound frames to the event loop, and an outbound writer that
// serializes all websocket writes. At most one backend turn is in flight at
// a time; prompts that arrive while streaming are queued and served in
// arrival order.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaiwa-labs/kaiwa/pkg/relay/calllog"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/chat"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/openai"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/protocol"
	"github.com/kaiwa-labs/kaiwa/pkg/relay/segment"
)

// wsConn is the subset of *websocket.Conn the session needs.
type wsConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	wsWriter
}

// Streamer opens one streaming chat completion over the given history. The
// returned body delivers the raw event-stream bytes.
type Streamer interface {
	StreamChat(ctx context.Context, history []chat.Turn) (io.ReadCloser, error)
}

type Config struct {
	MaxMessageBytes    int64
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	MaxSessionDuration time.Duration
	TurnTimeout        time.Duration
	OutboundQueueSize  int
}

type Dependencies struct {
	Conn     wsConn
	Logger   *slog.Logger
	Streamer Streamer // nil when no backend credential is configured
	Recorder calllog.Recorder

	SystemPrompt string
	Path         string
	RequestID    string
	Config       Config
	Now          func() time.Time
}

type Session struct {
	conn     wsConn
	logger   *slog.Logger
	streamer Streamer
	recorder calllog.Recorder

	path      string
	requestID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte
	history  *history

	// populated by the setup frame
	sessionID string
	callSID   string
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type turnResult struct {
	turnID        int
	userText      string
	assistantText string
	sentences     int
	errMessage    string
	startedAt     time.Time
	err           error
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if strings.TrimSpace(deps.SystemPrompt) == "" {
		return nil, fmt.Errorf("system prompt is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = calllog.Nop{}
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 64
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:      deps.Conn,
		logger:    deps.Logger,
		streamer:  deps.Streamer,
		recorder:  deps.Recorder,
		path:      deps.Path,
		requestID: deps.RequestID,
		cfg:       deps.Config,
		now:       deps.Now,
		ctx:       ctx,
		cancel:    cancel,
		outbound:  make(chan []byte, deps.Config.OutboundQueueSize),
		history:   newHistory(deps.SystemPrompt),
	}, nil
}

// Cancel aborts the session and any in-flight backend stream.
func (s *Session) Cancel() {
	s.cancel()
}

// Run drives the session until the client disconnects, the session expires,
// or the writer fails. It always returns with the connection closed.
func (s *Session) Run() error {
	defer s.cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	readCh := make(chan inboundFrame, 16)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:           s.conn,
			ctx:          s.ctx,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
			frames:       s.outbound,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	var sessionExpired <-chan time.Time
	if s.cfg.MaxSessionDuration > 0 {
		expiry := time.NewTimer(s.cfg.MaxSessionDuration)
		defer expiry.Stop()
		sessionExpired = expiry.C
	}

	turnDoneCh := make(chan turnResult, 1)
	var pendingPrompts []string
	streaming := false
	turnID := 0

	startTurn := func(userText string) {
		turnID++
		streaming = true
		s.history.appendUser(userText)
		hist := s.history.snapshot()
		id := turnID
		go func() {
			turnDoneCh <- s.runTurn(id, userText, hist)
		}()
	}

	for {
		select {
		case fr, ok := <-readCh:
			if !ok {
				return nil
			}
			if fr.err != nil {
				if websocket.IsUnexpectedCloseError(fr.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					s.logger.Warn("websocket read failed", "session_id", s.sessionID, "request_id", s.requestID, "error", fr.err)
				}
				return nil
			}
			msg, err := protocol.DecodeClientMessage(fr.data)
			if err != nil {
				s.logger.Warn("dropping malformed client frame", "session_id", s.sessionID, "request_id", s.requestID, "error", err)
				continue
			}
			switch m := msg.(type) {
			case protocol.ClientSetup:
				s.sessionID = strings.TrimSpace(m.SessionID)
				s.callSID = strings.TrimSpace(m.CallSID)
				s.logger.Info("session setup",
					"session_id", s.sessionID,
					"call_sid", s.callSID,
					"path", s.path,
					"request_id", s.requestID,
				)
			case protocol.ClientPrompt:
				text := strings.TrimSpace(m.VoicePrompt)
				if streaming {
					pendingPrompts = append(pendingPrompts, text)
					continue
				}
				startTurn(text)
			}

		case res := <-turnDoneCh:
			streaming = false
			s.finishTurn(res)
			if len(pendingPrompts) > 0 {
				next := pendingPrompts[0]
				pendingPrompts = pendingPrompts[1:]
				startTurn(next)
			}

		case err := <-writerErrCh:
			return err

		case <-sessionExpired:
			s.logger.Info("session reached max duration", "session_id", s.sessionID, "path", s.path)
			return nil

		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *Session) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// runTurn executes one backend streaming call and emits sentence frames as
// they complete. It runs on its own goroutine; the event loop applies the
// result to history when it arrives.
func (s *Session) runTurn(turnID int, userText string, hist []chat.Turn) turnResult {
	res := turnResult{turnID: turnID, userText: userText, startedAt: s.now()}

	if s.streamer == nil {
		s.logger.Error("backend api key not configured", "session_id", s.sessionID, "path", s.path)
		res.errMessage = "API key not configured"
		_ = s.sendEvent(protocol.ServerError{Type: protocol.TypeError, Message: res.errMessage})
		return res
	}

	ctx := s.ctx
	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
		defer cancel()
	}

	body, err := s.streamer.StreamChat(ctx, hist)
	if err != nil {
		res.err = err
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			res.errMessage = fmt.Sprintf("OpenAI API error: %d", apiErr.Status)
		} else {
			res.errMessage = "upstream request failed"
		}
		s.logger.Error("backend request failed", "session_id", s.sessionID, "turn", turnID, "error", err)
		_ = s.sendEvent(protocol.ServerError{Type: protocol.TypeError, Message: res.errMessage})
		return res
	}
	defer body.Close()

	var (
		dec    openai.Decoder
		buffer string
		full   strings.Builder
	)

	emit := func(tokens []string) error {
		for _, tok := range tokens {
			full.WriteString(tok)
			var sentences []string
			sentences, buffer = segment.Feed(buffer, tok)
			for _, sentence := range sentences {
				if err := s.sendEvent(protocol.ServerText{Type: protocol.TypeText, Token: sentence}); err != nil {
					return err
				}
				res.sentences++
			}
		}
		return nil
	}

	chunk := make([]byte, 4096)
	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			if err := emit(dec.Feed(chunk[:n])); err != nil {
				res.err = err
				return res
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			res.err = readErr
			s.logger.Warn("backend stream read failed", "session_id", s.sessionID, "turn", turnID, "error", readErr)
			return res
		}
	}
	if err := emit(dec.Flush()); err != nil {
		res.err = err
		return res
	}

	// Final flush: leftover buffer text becomes the closing sentence. A turn
	// that emitted sentences but has no leftover still gets an empty closing
	// marker so the client can end the utterance.
	switch {
	case buffer != "":
		if err := s.sendEvent(protocol.ServerText{Type: protocol.TypeText, Token: buffer, Last: true}); err != nil {
			res.err = err
			return res
		}
		res.sentences++
	case res.sentences > 0:
		if err := s.sendEvent(protocol.ServerText{Type: protocol.TypeText, Token: "", Last: true}); err != nil {
			res.err = err
			return res
		}
	}

	res.assistantText = full.String()
	return res
}

// finishTurn applies a turn result to history and records it. Runs on the
// event loop.
func (s *Session) finishTurn(res turnResult) {
	completed := res.err == nil && res.errMessage == ""
	if completed {
		s.history.appendAssistant(res.assistantText)
	}

	durationMS := s.now().Sub(res.startedAt).Milliseconds()
	if completed {
		s.logger.Info("turn complete",
			"session_id", s.sessionID,
			"turn", res.turnID,
			"sentences", res.sentences,
			"duration_ms", durationMS,
		)
	} else {
		s.logger.Warn("turn failed",
			"session_id", s.sessionID,
			"turn", res.turnID,
			"duration_ms", durationMS,
			"error", firstNonEmpty(res.errMessage, errString(res.err)),
		)
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.recorder.RecordTurn(recordCtx, calllog.TurnLog{
		SessionID:     s.sessionID,
		CallSID:       s.callSID,
		Path:          s.path,
		Turn:          res.turnID,
		UserText:      res.userText,
		AssistantText: res.assistantText,
		Sentences:     res.sentences,
		ErrorMessage:  firstNonEmpty(res.errMessage, errString(res.err)),
		DurationMS:    durationMS,
	})
	if err != nil {
		s.logger.Warn("record turn failed", "session_id", s.sessionID, "turn", res.turnID, "error", err)
	}
}

func (s *Session) sendEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- data:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
