package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"secretary-backend/internal/config"
	"secretary-backend/internal/model"
	"secretary-backend/internal/storage"
	"secretary-backend/internal/utils"
	"secretary-backend/pkg/logger"

	"github.com/google/uuid"
)

const (
	chatEndpoint     = "/api/secretary/chat"
	analysisEndpoint = "/api/secretary/sdg-analysis"

	// policyBlockHeader carries a backend policy-violation reason. Recorded as
	// session state before the body is read, independent of stream success.
	policyBlockHeader = "X-Policy-Block"

	maxErrorBody    = 512
	maxErrorDisplay = 300
	eventBuffer     = 64
)

// ErrStreamBusy rejects a second chat call while one is already in flight on
// the same session.
var ErrStreamBusy = errors.New("a chat request is already in flight for this session")

// chatSession is the per-session state. All fields are guarded by the
// service mutex.
type chatSession struct {
	id             string
	messages       []model.ChatMessage
	cancelChat     context.CancelFunc
	cancelAnalysis context.CancelFunc
	chatActive     bool
	analysisActive bool
	policyReason   string
	updatedAt      time.Time
}

// ChatService relays conversations to the secretary backend. Each call
// produces exactly one new assistant message, filled either atomically or
// incrementally from the backend's newline-delimited JSON stream, and the
// transcript is persisted on every change.
type ChatService struct {
	cfg          *config.Config
	store        storage.Store
	client       *http.Client // buffered calls, bounded by chat.timeout
	streamClient *http.Client // streaming calls, no overall deadline
	mu           sync.Mutex
	sessions     map[string]*chatSession
}

func NewChatService(cfg *config.Config, store storage.Store) *ChatService {
	s := &ChatService{
		cfg:          cfg,
		store:        store,
		client:       utils.NewHTTPClient(cfg.Chat.Timeout),
		streamClient: utils.NewStreamingHTTPClient(),
		sessions:     make(map[string]*chatSession),
	}

	go s.cleanupIdleSessions()

	return s
}

// Send relays one user message. Empty input (after trimming) is a silent
// no-op returning a nil channel. onSent runs synchronously after the user
// message is appended and before any network I/O, so the caller can clear UI
// state immediately. All failures except ErrStreamBusy are absorbed into the
// transcript as an error message; they never reach the caller.
func (s *ChatService) Send(sessionID, text string, useStream bool, onSent func()) (<-chan model.ChatEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	s.mu.Lock()
	sess := s.sessionLocked(sessionID)
	if sess.chatActive {
		s.mu.Unlock()
		return nil, ErrStreamBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.chatActive = true
	sess.cancelChat = cancel

	s.appendLocked(sess, model.ChatMessage{
		Sender: model.SenderUser,
		Text:   text,
		Time:   model.MessageTime(time.Now()),
	})
	history := s.historyLocked(sess)

	var placeholderID string
	if useStream {
		placeholderID = uuid.New().String()
		s.appendLocked(sess, model.ChatMessage{
			ID:     placeholderID,
			Sender: model.SenderAI,
			Time:   model.MessageTime(time.Now()),
		})
	}
	s.mu.Unlock()

	if onSent != nil {
		onSent()
	}

	events := make(chan model.ChatEvent, eventBuffer)
	reqBody := model.CompletionRequest{
		Model:    s.cfg.Chat.Model,
		Stream:   useStream,
		Messages: history,
	}

	go func() {
		defer close(events)
		defer s.finishChat(sess)

		if useStream {
			s.runStream(ctx, sess, chatEndpoint, reqBody, placeholderID, events)
		} else {
			s.runBuffered(ctx, sess, reqBody, events)
		}
	}()

	return events, nil
}

// SendAnalysis relays one SDG analysis request on its own cancellation token,
// so stopping an analysis never touches an unrelated plain chat stream. Empty
// text or an empty topic list is a silent no-op: no network call, transcript
// unchanged.
func (s *ChatService) SendAnalysis(sessionID string, topicIDs []string, userText, contextLabel string) (<-chan model.ChatEvent, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" || len(topicIDs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	sess := s.sessionLocked(sessionID)
	if sess.analysisActive {
		s.mu.Unlock()
		return nil, ErrStreamBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.analysisActive = true
	sess.cancelAnalysis = cancel

	s.appendLocked(sess, model.ChatMessage{
		Sender: model.SenderUser,
		Text:   userText,
		Time:   model.MessageTime(time.Now()),
	})

	placeholderID := uuid.New().String()
	s.appendLocked(sess, model.ChatMessage{
		ID:     placeholderID,
		Sender: model.SenderAI,
		Type:   model.MessageTypeSDGAnalysis,
		Time:   model.MessageTime(time.Now()),
	})
	s.mu.Unlock()

	message := userText
	if contextLabel != "" {
		message = contextLabel + "\n" + userText
	}

	reqBody := model.AnalysisCompletionRequest{
		SDGs:        strings.Join(topicIDs, ","),
		Model:       s.cfg.Chat.Model,
		Stream:      true,
		UserMessage: message,
	}

	events := make(chan model.ChatEvent, eventBuffer)
	go func() {
		defer close(events)
		defer s.finishAnalysis(sess)

		s.runStream(ctx, sess, analysisEndpoint, reqBody, placeholderID, events)
	}()

	return events, nil
}

// Stop aborts whichever streams are live on the session. Idempotent; an
// aborted stream never produces an error message in the transcript.
func (s *ChatService) Stop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}

	if sess.cancelChat != nil {
		sess.cancelChat()
		sess.cancelChat = nil
	}
	if sess.cancelAnalysis != nil {
		sess.cancelAnalysis()
		sess.cancelAnalysis = nil
	}
	sess.chatActive = false
	sess.analysisActive = false
}

// Streaming reports whether any chat or analysis call is in flight.
func (s *ChatService) Streaming(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	return sess.chatActive || sess.analysisActive
}

// PolicyReason returns the recorded policy-block reason, empty if none.
func (s *ChatService) PolicyReason(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ""
	}
	return sess.policyReason
}

// Messages returns a copy of the session transcript, restoring it from the
// store on first access.
func (s *ChatService) Messages(sessionID string) []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(sessionID)
	messages := make([]model.ChatMessage, len(sess.messages))
	copy(messages, sess.messages)
	return messages
}

// AppendMessage pushes a message into the transcript on behalf of a
// coordinator, e.g. a chart message when an upload task completes. Assigns an
// id and creation time when missing and returns the stored message.
func (s *ChatService) AppendMessage(sessionID string, msg model.ChatMessage) model.ChatMessage {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Time == "" {
		msg.Time = model.MessageTime(time.Now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(sessionID)
	s.appendLocked(sess, msg)
	return msg
}

// ConfirmMessage toggles the confirmation flag of a chart message in place.
func (s *ChatService) ConfirmMessage(sessionID, messageID string, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(sessionID)
	for i := range sess.messages {
		if sess.messages[i].ID != messageID {
			continue
		}
		if sess.messages[i].Type != model.MessageTypeChart {
			return fmt.Errorf("message %s is not a chart message", messageID)
		}
		sess.messages[i].Confirmed = confirmed
		s.persistLocked(sess)
		return nil
	}

	return fmt.Errorf("message %s not found in session %s", messageID, sessionID)
}

// ClearSession aborts live streams, drops the in-memory session and removes
// the persisted transcript.
func (s *ChatService) ClearSession(sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		if sess.cancelChat != nil {
			sess.cancelChat()
		}
		if sess.cancelAnalysis != nil {
			sess.cancelAnalysis()
		}
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	return s.store.Clear(sessionID)
}

// runBuffered issues one non-streaming completion call and appends the reply
// as a single assistant message.
func (s *ChatService) runBuffered(ctx context.Context, sess *chatSession, reqBody model.CompletionRequest, events chan<- model.ChatEvent) {
	resp, err := s.post(ctx, s.client, chatEndpoint, sess.id, reqBody)
	if err != nil {
		s.deliverFailure(sess, "", err, events)
		return
	}
	defer resp.Body.Close()

	s.capturePolicyBlock(sess, resp, events)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.deliverFailure(sess, "", httpStatusError(resp), events)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.deliverFailure(sess, "", err, events)
		return
	}

	reply := resolveReplyText(body)
	messageID := uuid.New().String()

	s.mu.Lock()
	s.appendLocked(sess, model.ChatMessage{
		ID:     messageID,
		Sender: model.SenderAI,
		Text:   reply,
		Time:   model.MessageTime(time.Now()),
	})
	s.mu.Unlock()

	events <- model.ChatEvent{Type: model.EventDelta, Content: reply, MessageID: messageID}
	events <- model.ChatEvent{Type: model.EventDone, MessageID: messageID}
}

// runStream issues a streaming call and applies deltas to the placeholder in
// the exact order received.
func (s *ChatService) runStream(ctx context.Context, sess *chatSession, endpoint string, reqBody any, placeholderID string, events chan<- model.ChatEvent) {
	resp, err := s.post(ctx, s.streamClient, endpoint, sess.id, reqBody)
	if err != nil {
		s.deliverFailure(sess, placeholderID, err, events)
		return
	}
	defer resp.Body.Close()

	s.capturePolicyBlock(sess, resp, events)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.deliverFailure(sess, placeholderID, httpStatusError(resp), events)
		return
	}

	err = readStream(ctx, resp.Body, func(delta string) {
		s.appendDelta(sess, placeholderID, delta)
		events <- model.ChatEvent{Type: model.EventDelta, Content: delta, MessageID: placeholderID}
	})
	if err != nil {
		s.deliverFailure(sess, placeholderID, err, events)
		return
	}

	events <- model.ChatEvent{Type: model.EventDone, MessageID: placeholderID}
}

// deliverFailure turns a non-abort failure into exactly one assistant error
// message. An abort is an expected user action: it ends the event stream
// without touching the transcript.
func (s *ChatService) deliverFailure(sess *chatSession, placeholderID string, err error, events chan<- model.ChatEvent) {
	if isAbort(err) {
		events <- model.ChatEvent{Type: model.EventDone, MessageID: placeholderID}
		return
	}

	logger.Errorf("Chat request failed for session %s: %v", sess.id, err)
	text := truncateForDisplay(err.Error(), maxErrorDisplay)

	s.mu.Lock()
	messageID := placeholderID
	converted := false
	if placeholderID != "" {
		for i := range sess.messages {
			if sess.messages[i].ID == placeholderID && sess.messages[i].Text == "" {
				sess.messages[i].Type = model.MessageTypeError
				sess.messages[i].Text = text
				converted = true
				break
			}
		}
	}
	if !converted {
		messageID = uuid.New().String()
		sess.messages = append(sess.messages, model.ChatMessage{
			ID:     messageID,
			Sender: model.SenderAI,
			Type:   model.MessageTypeError,
			Text:   text,
			Time:   model.MessageTime(time.Now()),
		})
	}
	s.persistLocked(sess)
	s.mu.Unlock()

	events <- model.ChatEvent{Type: model.EventError, Content: text, MessageID: messageID}
	events <- model.ChatEvent{Type: model.EventDone, MessageID: messageID}
}

func (s *ChatService) capturePolicyBlock(sess *chatSession, resp *http.Response, events chan<- model.ChatEvent) {
	reason := resp.Header.Get(policyBlockHeader)
	if reason == "" {
		return
	}

	s.mu.Lock()
	sess.policyReason = reason
	s.mu.Unlock()

	events <- model.ChatEvent{Type: model.EventPolicy, Content: reason}
}

func (s *ChatService) post(ctx context.Context, client *http.Client, endpoint, sessionID string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	u := fmt.Sprintf("%s%s?session_id=%s",
		strings.TrimSuffix(s.cfg.Backend.BaseURL, "/"), endpoint, url.QueryEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Backend.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Backend.APIKey)
	}

	return client.Do(req)
}

// sessionLocked returns the session, creating it and restoring its transcript
// from the store on first access. Caller holds s.mu.
func (s *ChatService) sessionLocked(sessionID string) *chatSession {
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}

	messages, err := s.store.Load(sessionID)
	if err != nil {
		logger.Errorf("Failed to load transcript for session %s: %v", sessionID, err)
		messages = []model.ChatMessage{}
	}

	sess := &chatSession{
		id:        sessionID,
		messages:  messages,
		updatedAt: time.Now(),
	}
	s.sessions[sessionID] = sess
	return sess
}

func (s *ChatService) appendLocked(sess *chatSession, msg model.ChatMessage) {
	sess.messages = append(sess.messages, msg)
	s.persistLocked(sess)
}

func (s *ChatService) persistLocked(sess *chatSession) {
	sess.updatedAt = time.Now()

	snapshot := make([]model.ChatMessage, len(sess.messages))
	copy(snapshot, sess.messages)
	if err := s.store.Save(sess.id, snapshot); err != nil {
		logger.Errorf("Failed to persist transcript for session %s: %v", sess.id, err)
	}
}

func (s *ChatService) appendDelta(sess *chatSession, placeholderID, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(sess.messages) - 1; i >= 0; i-- {
		if sess.messages[i].ID == placeholderID {
			sess.messages[i].Text += delta
			s.persistLocked(sess)
			return
		}
	}
}

// historyLocked maps the transcript to role/content pairs with the system
// prompt first, bounded by max_history_messages. Caller holds s.mu.
func (s *ChatService) historyLocked(sess *chatSession) []model.CompletionMessage {
	start := 0
	if limit := s.cfg.Chat.MaxHistoryMessages; len(sess.messages) > limit {
		start = len(sess.messages) - limit
	}

	history := make([]model.CompletionMessage, 0, len(sess.messages)-start+1)
	history = append(history, model.CompletionMessage{
		Role:    "system",
		Content: s.cfg.Chat.SystemPrompt,
	})
	for _, msg := range sess.messages[start:] {
		history = append(history, model.CompletionMessage{
			Role:    msg.Role(),
			Content: msg.Text,
		})
	}

	return history
}

func (s *ChatService) finishChat(sess *chatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.chatActive = false
	if sess.cancelChat != nil {
		sess.cancelChat()
		sess.cancelChat = nil
	}
}

func (s *ChatService) finishAnalysis(sess *chatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.analysisActive = false
	if sess.cancelAnalysis != nil {
		sess.cancelAnalysis()
		sess.cancelAnalysis = nil
	}
}

// cleanupIdleSessions drops in-memory sessions past the configured TTL and
// removes their persisted transcripts. Sessions with live streams are
// skipped.
func (s *ChatService) cleanupIdleSessions() {
	ticker := time.NewTicker(s.cfg.Session.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-s.cfg.Session.TTL)

		s.mu.Lock()
		var expired []string
		for id, sess := range s.sessions {
			if sess.updatedAt.Before(cutoff) && !sess.chatActive && !sess.analysisActive {
				delete(s.sessions, id)
				expired = append(expired, id)
			}
		}
		s.mu.Unlock()

		for _, id := range expired {
			if err := s.store.Clear(id); err != nil {
				logger.Errorf("Failed to clear expired session %s: %v", id, err)
			} else {
				logger.Infof("Cleaned up expired session: %s", id)
			}
		}
	}
}

// isAbort distinguishes a user- or system-initiated cancellation from a real
// failure. Aborts are swallowed everywhere they can occur.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled)
}

// resolveReplyText extracts the assistant reply from a buffered response
// body: message.content, then response, then the raw body text.
func resolveReplyText(body []byte) string {
	var parsed model.CompletionResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != nil && parsed.Message.Content != "" {
			return parsed.Message.Content
		}
		if parsed.Response != "" {
			return parsed.Response
		}
	}
	return string(body)
}

func httpStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func truncateForDisplay(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}
