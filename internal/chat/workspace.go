package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/healthyai/internal/ai"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/logger"
)

// ErrSuperseded is returned by Send when a newer Send on the same workspace
// (or its teardown) cancelled it. Its result was discarded.
var ErrSuperseded = errors.New("chat: request superseded")

const (
	replyTimeoutMessage  = "The assistant took too long to respond. Please try again."
	replyNotReadyMessage = "HealthyAI is still starting up. Please try again in a moment."
	replyFailedMessage   = "Sorry, the system is busy right now. Please try sending again later."
)

// View is the active conversation of a workspace.
type View struct {
	SessionID   string        `json:"session_id"`
	Title       string        `json:"title"`
	LastMessage string        `json:"last_message"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Messages    []ChatMessage `json:"messages"`
}

type SendResult struct {
	SessionID             string    `json:"session_id"`
	Reply                 string    `json:"reply"`
	Metadata              *Metadata `json:"metadata,omitempty"`
	ClarificationNeeded   bool      `json:"clarification_needed"`
	ClarificationQuestion string    `json:"clarification_question,omitempty"`
	Replayed              bool      `json:"replayed,omitempty"`
}

// Workspace is one signed-in user's chat context. Every method is safe for
// concurrent use; inference runs without holding the lock.
type Workspace struct {
	svc *Service
	id  Identity

	mu          sync.Mutex
	view        *View
	placeholder int
	inflight    context.CancelFunc
	gen         uint64
	closed      bool
}

func newWorkspace(svc *Service, id Identity) *Workspace {
	return &Workspace{svc: svc, id: id, placeholder: -1}
}

func (w *Workspace) Identity() Identity { return w.id }

func (w *Workspace) authenticated() error {
	if w.id.UserID == 0 {
		return common.ErrUnauthenticated
	}
	return nil
}

// View returns a copy of the active view, nil if none is open.
func (w *Workspace) View() *View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workspace) snapshotLocked() *View {
	if w.view == nil {
		return nil
	}
	v := *w.view
	v.Messages = append([]ChatMessage(nil), w.view.Messages...)
	return &v
}

// OpenSession makes one of the user's sessions the active view and returns
// its messages. A session the user does not own is common.ErrNotFound and
// leaves the view untouched. An in-flight Send keeps running and completes
// into its own session.
func (w *Workspace) OpenSession(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	if err := w.authenticated(); err != nil {
		return nil, err
	}
	sess, err := w.svc.SessionFor(ctx, w.id.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs := w.svc.LoadMessages(ctx, w.id.UserID, sessionID)
	v := &View{
		SessionID:   sessionID,
		Title:       sess.Title,
		LastMessage: sess.LastMessage,
		UpdatedAt:   sess.UpdatedAt,
		Messages:    msgs,
	}

	w.mu.Lock()
	w.view = v
	w.placeholder = -1
	w.mu.Unlock()
	return append([]ChatMessage(nil), msgs...), nil
}

// LoadSession is OpenSession for callers that only render: a missing or
// foreign session shows the greeting without becoming active.
func (w *Workspace) LoadSession(ctx context.Context, sessionID string) []ChatMessage {
	msgs, err := w.OpenSession(ctx, sessionID)
	if err != nil {
		return greetingMessages()
	}
	return msgs
}

// StartNewChat opens a fresh session holding only the greeting and records
// it in history.
func (w *Workspace) StartNewChat(ctx context.Context) (*View, error) {
	if err := w.authenticated(); err != nil {
		return nil, err
	}
	now := time.Now()
	v := &View{
		SessionID:   NewSessionID(),
		Title:       DefaultTitle,
		LastMessage: Greeting,
		UpdatedAt:   now,
		Messages:    greetingMessages(),
	}
	w.svc.saveSession(ctx, &Session{
		SessionID:    v.SessionID,
		UserID:       w.id.UserID,
		UserEmail:    w.id.Email,
		Title:        v.Title,
		LastMessage:  v.LastMessage,
		MessageCount: len(v.Messages),
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = v
	w.placeholder = -1
	return w.snapshotLocked(), nil
}

// ListSessions returns the user's history, newest first. A user without any
// history gets a new chat opened, so the list is never empty on first login.
func (w *Workspace) ListSessions(ctx context.Context) ([]Session, error) {
	list, err := w.svc.ListSessions(ctx, w.id.UserID)
	if err != nil || len(list) > 0 {
		return list, err
	}
	if _, err := w.StartNewChat(ctx); err != nil {
		return nil, err
	}
	return w.svc.ListSessions(ctx, w.id.UserID)
}

// DeleteSession removes the session from the store. The active view is
// closed only when the delete fully succeeded.
func (w *Workspace) DeleteSession(ctx context.Context, sessionID string) error {
	if err := w.authenticated(); err != nil {
		return err
	}
	if err := w.svc.DeleteSession(ctx, w.id.UserID, sessionID); err != nil {
		return err
	}
	w.mu.Lock()
	if w.view != nil && w.view.SessionID == sessionID {
		w.view = nil
		w.placeholder = -1
	}
	w.mu.Unlock()
	return nil
}

// AppendUserMessage persists text as a user message, then adds it to the
// view. An empty key gets a server-assigned one.
func (w *Workspace) AppendUserMessage(ctx context.Context, sessionID, text, key string) error {
	_, err := w.appendUser(ctx, sessionID, text, key)
	return err
}

func (w *Workspace) appendUser(ctx context.Context, sessionID, text, key string) (replayed bool, err error) {
	if err := w.authenticated(); err != nil {
		return false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, fmt.Errorf("%w: message is empty", common.ErrValidation)
	}
	if !w.isActive(sessionID) {
		return false, fmt.Errorf("%w: no active session %q", common.ErrNotFound, sessionID)
	}
	if key == "" && w.repeatsLastUserMessage(text) {
		return false, nil
	}
	if key == "" {
		if key, err = common.NewULID(); err != nil {
			return false, err
		}
	}

	created, perr := w.svc.persistMessage(ctx, w.id, sessionID, RoleUser, text, nil, key)
	replayed = perr == nil && !created

	w.mu.Lock()
	defer w.mu.Unlock()
	if replayed || w.view == nil || w.view.SessionID != sessionID {
		return replayed, nil
	}
	msg := ChatMessage{Role: RoleUser, Content: text, key: key}
	if n := len(w.view.Messages); n > 0 && isSameMessage(w.view.Messages[n-1], msg) {
		return replayed, nil
	}
	w.view.Messages = append(w.view.Messages, msg)
	w.touchPreviewLocked(text)
	return replayed, nil
}

// AppendAssistantReply fills the pending placeholder (or appends), persists
// the reply and updates the session preview.
func (w *Workspace) AppendAssistantReply(ctx context.Context, sessionID, reply string, md *Metadata) error {
	if err := w.authenticated(); err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return fmt.Errorf("%w: reply is empty", common.ErrValidation)
	}
	w.mu.Lock()
	gen := w.gen
	w.mu.Unlock()
	return w.completeReply(ctx, gen, sessionID, reply, md, "", true)
}

// completeReply applies an assistant message unless gen is stale. When the
// user has moved to another session the message is only persisted.
func (w *Workspace) completeReply(ctx context.Context, gen uint64, sessionID, content string, md *Metadata, key string, preview bool) error {
	if key == "" {
		if k, err := common.NewULID(); err == nil {
			key = k
		}
	}

	w.mu.Lock()
	if w.gen != gen || w.closed {
		w.mu.Unlock()
		return ErrSuperseded
	}
	var sess *Session
	if w.view != nil && w.view.SessionID == sessionID {
		msg := ChatMessage{Role: RoleAssistant, Content: content, Metadata: md, key: key}
		switch {
		case w.placeholder >= 0 && w.placeholder < len(w.view.Messages) && w.view.Messages[w.placeholder].Pending:
			w.view.Messages[w.placeholder] = msg
		case len(w.view.Messages) > 0 && isSameMessage(w.view.Messages[len(w.view.Messages)-1], msg):
		default:
			w.view.Messages = append(w.view.Messages, msg)
		}
		w.placeholder = -1
		if preview {
			w.touchPreviewLocked(content)
			sess = w.sessionLocked()
		}
	}
	w.mu.Unlock()

	_, _ = w.svc.persistMessage(ctx, w.id, sessionID, RoleAssistant, content, md, key)

	if !preview {
		return nil
	}
	if sess == nil {
		sess = w.sessionFromStore(ctx, sessionID, content)
	}
	w.svc.saveSession(ctx, sess)
	return nil
}

// Send runs one full exchange: user message, placeholder, inference, reply.
func (w *Workspace) Send(ctx context.Context, sessionID, text, key string) (*SendResult, error) {
	if err := w.authenticated(); err != nil {
		return nil, err
	}
	if !w.isActive(sessionID) {
		if _, err := w.OpenSession(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	text = strings.TrimSpace(text)
	replayed, err := w.appendUser(ctx, sessionID, text, key)
	if err != nil {
		return nil, err
	}
	if replayed && key != "" {
		if prev := w.storedReply(ctx, sessionID, key); prev != nil {
			return prev, nil
		}
	}

	w.mu.Lock()
	if w.inflight != nil {
		w.inflight()
	}
	w.dropPendingLocked()
	w.gen++
	gen := w.gen
	reqCtx, cancel := context.WithCancel(ctx)
	w.inflight = cancel
	if w.view != nil && w.view.SessionID == sessionID {
		w.view.Messages = append(w.view.Messages, ChatMessage{Role: RoleAssistant, Content: PlaceholderReply, Pending: true})
		w.placeholder = len(w.view.Messages) - 1
	}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		if w.gen == gen {
			w.inflight = nil
		}
		w.mu.Unlock()
		cancel()
	}()

	reply, err := w.ask(reqCtx, text, sessionID)

	// Persist even if the HTTP request that carried us went away.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		if w.stale(gen) {
			return nil, ErrSuperseded
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, ai.ErrNotReady) {
			w.svc.scheduleReadyRecheck()
		}
		logger.L.Warn("chat: inference failed", "session_id", sessionID, "user_id", w.id.UserID, "err", err)
		if cerr := w.completeReply(persistCtx, gen, sessionID, userFacingError(err), nil, "", false); errors.Is(cerr, ErrSuperseded) {
			return nil, ErrSuperseded
		}
		return nil, classifyInferenceError(err)
	}

	var md *Metadata
	if m := MetadataFromReply(reply); !m.IsEmpty() {
		md = &m
	}
	replyKey := ""
	if key != "" {
		replyKey = key + ":reply"
	}
	if err := w.completeReply(persistCtx, gen, sessionID, reply.Reply, md, replyKey, true); err != nil {
		return nil, err
	}
	return &SendResult{
		SessionID:             sessionID,
		Reply:                 reply.Reply,
		Metadata:              md,
		ClarificationNeeded:   reply.ClarificationNeeded,
		ClarificationQuestion: reply.ClarificationQuestion,
	}, nil
}

func (w *Workspace) ask(ctx context.Context, text, sessionID string) (*ai.Reply, error) {
	p, err := w.svc.provider(ctx)
	if err != nil {
		return nil, err
	}
	return p.SendMessage(ctx, text, sessionID)
}

// storedReply finds the assistant answer already persisted for a replayed key.
func (w *Workspace) storedReply(ctx context.Context, sessionID, key string) *SendResult {
	rec, err := w.svc.repo.GetMessageByIdempotencyKey(ctx, w.id.UserID, sessionID, key+":reply")
	if err != nil {
		return nil
	}
	msg, ok := resolveRecord(*rec)
	if !ok {
		return nil
	}
	return &SendResult{SessionID: sessionID, Reply: msg.Content, Metadata: msg.Metadata, Replayed: true}
}

func (w *Workspace) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight != nil
}

// Close cancels any in-flight Send and drops the view.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
	w.view = nil
	w.placeholder = -1
}

func (w *Workspace) isActive(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view != nil && w.view.SessionID == sessionID
}

// repeatsLastUserMessage reports a double submit: the view already ends with
// this exact user message.
func (w *Workspace) repeatsLastUserMessage(text string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view == nil || len(w.view.Messages) == 0 {
		return false
	}
	return isSameMessage(w.view.Messages[len(w.view.Messages)-1], ChatMessage{Role: RoleUser, Content: text})
}

func (w *Workspace) stale(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen != gen || w.closed
}

func (w *Workspace) dropPendingLocked() {
	w.placeholder = -1
	if w.view == nil {
		return
	}
	kept := w.view.Messages[:0]
	for _, m := range w.view.Messages {
		if !m.Pending {
			kept = append(kept, m)
		}
	}
	w.view.Messages = kept
}

func (w *Workspace) touchPreviewLocked(latest string) {
	w.view.LastMessage = latest
	w.view.UpdatedAt = time.Now()
	w.view.Title = titleFrom(w.view.Messages)
}

func (w *Workspace) sessionLocked() *Session {
	return &Session{
		SessionID:    w.view.SessionID,
		UserID:       w.id.UserID,
		UserEmail:    w.id.Email,
		Title:        w.view.Title,
		LastMessage:  w.view.LastMessage,
		MessageCount: len(w.view.Messages),
		UpdatedAt:    w.view.UpdatedAt,
	}
}

// sessionFromStore rebuilds the preview of a session that is no longer the
// active view.
func (w *Workspace) sessionFromStore(ctx context.Context, sessionID, latest string) *Session {
	msgs := w.svc.LoadMessages(ctx, w.id.UserID, sessionID)
	return &Session{
		SessionID:    sessionID,
		UserID:       w.id.UserID,
		UserEmail:    w.id.Email,
		Title:        titleFrom(msgs),
		LastMessage:  latest,
		MessageCount: len(msgs),
		UpdatedAt:    time.Now(),
	}
}

func titleFrom(msgs []ChatMessage) string {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return BuildTitle(m.Content)
		}
	}
	return DefaultTitle
}

func isSameMessage(a, b ChatMessage) bool {
	return !a.Pending && a.Role == b.Role && a.Content == b.Content
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return replyTimeoutMessage
	case errors.Is(err, ai.ErrNotReady):
		return replyNotReadyMessage
	default:
		return replyFailedMessage
	}
}

func classifyInferenceError(err error) error {
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	case errors.Is(err, ai.ErrNotReady):
		return err
	default:
		return fmt.Errorf("%w: %w", common.ErrTransientIO, err)
	}
}

// Workspaces holds one Workspace per signed-in user.
type Workspaces struct {
	svc *Service
	now func() time.Time

	mu       sync.Mutex
	byUser   map[uint64]*Workspace
	lastUsed map[uint64]time.Time
}

func NewWorkspaces(svc *Service) *Workspaces {
	return &Workspaces{
		svc:      svc,
		now:      time.Now,
		byUser:   make(map[uint64]*Workspace),
		lastUsed: make(map[uint64]time.Time),
	}
}

// Open returns the user's workspace, creating it on first use.
func (r *Workspaces) Open(id Identity) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed[id.UserID] = r.now()
	if ws, ok := r.byUser[id.UserID]; ok {
		return ws
	}
	ws := newWorkspace(r.svc, id)
	r.byUser[id.UserID] = ws
	return ws
}

// Len is the number of open workspaces.
func (r *Workspaces) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Sweep closes workspaces not opened for longer than idle and returns how
// many it evicted. A workspace with a Send in flight is kept.
func (r *Workspaces) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	var evicted []*Workspace

	r.mu.Lock()
	for uid, ws := range r.byUser {
		if !r.lastUsed[uid].Before(cutoff) || ws.busy() {
			continue
		}
		delete(r.byUser, uid)
		delete(r.lastUsed, uid)
		evicted = append(evicted, ws)
	}
	r.mu.Unlock()

	for _, ws := range evicted {
		ws.Close()
	}
	return len(evicted)
}

// RunJanitor sweeps every interval until ctx is done. With idle at least
// the token lifetime, only workspaces whose tokens have expired are evicted.
func (r *Workspaces) RunJanitor(ctx context.Context, every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(idle); n > 0 {
				logger.L.Info("chat: evicted idle workspaces", "count", n)
			}
		}
	}
}

// Close tears down the user's workspace (logout).
func (r *Workspaces) Close(userID uint64) {
	r.mu.Lock()
	ws, ok := r.byUser[userID]
	delete(r.byUser, userID)
	delete(r.lastUsed, userID)
	r.mu.Unlock()
	if ok {
		ws.Close()
	}
}

// CloseAll is used on shutdown.
func (r *Workspaces) CloseAll() {
	r.mu.Lock()
	all := r.byUser
	r.byUser = make(map[uint64]*Workspace)
	r.lastUsed = make(map[uint64]time.Time)
	r.mu.Unlock()
	for _, ws := range all {
		ws.Close()
	}
}
