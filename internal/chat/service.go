package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/healthyai/internal/ai"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultReadyRecheckDelay = 10 * time.Second

type Service struct {
	repo         *Repo
	registry     *ai.Registry
	providerName string

	// ReadyRecheckDelay is how long after a not-ready answer readiness is probed again.
	ReadyRecheckDelay time.Duration

	mu      sync.Mutex
	ready   *ai.Readiness
	recheck *time.Timer
}

func NewService(repo *Repo, registry *ai.Registry, providerName string) *Service {
	if providerName == "" {
		providerName = "healthyai"
	}
	return &Service{
		repo:              repo,
		registry:          registry,
		providerName:      providerName,
		ReadyRecheckDelay: defaultReadyRecheckDelay,
	}
}

func (s *Service) provider(ctx context.Context) (ai.Provider, error) {
	return s.registry.Get(ctx, s.providerName)
}

// NewSessionID returns a random UUID, or a time-based id if the random
// source fails.
func NewSessionID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("chat_%d", time.Now().UnixMilli())
	}
	return id.String()
}

// LoadMessages returns the display list for one of the user's sessions. It
// never fails: an empty session or a store error both yield the greeting.
func (s *Service) LoadMessages(ctx context.Context, userID uint64, sessionID string) []ChatMessage {
	recs, err := s.repo.ListSessionMessages(ctx, userID, sessionID)
	if err != nil {
		logger.L.Warn("chat: load messages failed", "user_id", userID, "session_id", sessionID, "err", err)
		return greetingMessages()
	}
	msgs := mergeRecords(recs)
	if len(msgs) == 0 {
		return greetingMessages()
	}
	return msgs
}

// SessionFor returns the user's session record or common.ErrNotFound.
func (s *Service) SessionFor(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, userID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]Session, error) {
	if userID == 0 {
		return nil, common.ErrUnauthenticated
	}
	out, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	return out, nil
}

// DeleteSession removes the session record, then its messages. The second
// pass runs even if the first fails; both failures are reported.
func (s *Service) DeleteSession(ctx context.Context, userID uint64, sessionID string) error {
	if userID == 0 {
		return common.ErrUnauthenticated
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session_id is required", common.ErrValidation)
	}

	var errs []error
	if _, err := s.repo.DeleteSession(ctx, userID, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	if _, err := s.repo.DeleteSessionMessages(ctx, userID, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete messages: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrTransientIO, errors.Join(errs...))
	}
	return nil
}

func (s *Service) saveSession(ctx context.Context, sess *Session) {
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		logger.L.Warn("chat: save session failed", "session_id", sess.SessionID, "user_id", sess.UserID, "err", err)
	}
}

// persistMessage writes one record. With a key, a replay of the same key
// returns the stored record and created is false.
func (s *Service) persistMessage(ctx context.Context, id Identity, sessionID string, role Role, content string, md *Metadata, key string) (created bool, err error) {
	rec := &Message{
		SessionID: sessionID,
		UserID:    id.UserID,
		UserEmail: id.Email,
		Role:      string(role),
		Text:      content,
	}
	if role == RoleAssistant {
		resp := content
		rec.AIResponse = &resp
	}
	if md != nil && !md.IsEmpty() {
		b, err := json.Marshal(md)
		if err == nil {
			rec.Metadata = datatypes.JSON(b)
		}
	}
	if key != "" {
		k := key
		rec.IdempotencyKey = &k
	}

	_, created, err = s.repo.InsertMessageOrGetExisting(ctx, rec)
	if err != nil {
		logger.L.Warn("chat: persist message failed", "session_id", sessionID, "role", role, "err", err)
		return false, err
	}
	return created, nil
}

// CheckReady asks the provider whether it can serve requests and caches the
// answer. A failed probe counts as not ready.
func (s *Service) CheckReady(ctx context.Context) *ai.Readiness {
	r := s.probe(ctx)
	s.setReady(r)
	return r
}

func (s *Service) probe(ctx context.Context) *ai.Readiness {
	p, err := s.provider(ctx)
	if err != nil {
		return &ai.Readiness{Ready: false, Status: "error", Error: err.Error()}
	}
	r, err := p.CheckReady(ctx)
	if err != nil {
		return &ai.Readiness{Ready: false, Status: "error", Error: err.Error()}
	}
	return r
}

// Readiness is the last cached probe result, nil if none ran yet.
func (s *Service) Readiness() *ai.Readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) setReady(r *ai.Readiness) {
	s.mu.Lock()
	s.ready = r
	s.mu.Unlock()
}

// scheduleReadyRecheck probes readiness once after ReadyRecheckDelay.
// Pending rechecks are not stacked.
func (s *Service) scheduleReadyRecheck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = &ai.Readiness{Ready: false, Status: "loading"}
	if s.recheck != nil {
		return
	}
	s.recheck = time.AfterFunc(s.ReadyRecheckDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r := s.probe(ctx)
		s.mu.Lock()
		s.ready = r
		s.recheck = nil
		s.mu.Unlock()
		logger.L.Info("chat: readiness rechecked", "ready", r.Ready, "status", r.Status)
	})
}
