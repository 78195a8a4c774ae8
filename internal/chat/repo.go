package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession updates the (user_id, session_id) record if one exists and
// creates it otherwise.
func (r *Repo) SaveSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Session
		err := tx.Where("user_id = ? AND session_id = ?", s.UserID, s.SessionID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(s).Error
		}
		if err != nil {
			return err
		}

		updatedAt := s.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if err := tx.Model(&Session{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"title":         s.Title,
				"last_message":  s.LastMessage,
				"message_count": s.MessageCount,
				"updated_at":    updatedAt,
			}).Error; err != nil {
			return err
		}
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		s.UpdatedAt = updatedAt
		return nil
	})
}

// ListSessions returns the user's sessions, most recently updated first.
func (r *Repo) ListSessions(ctx context.Context, userID uint64) ([]Session, error) {
	var out []Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) DeleteSession(ctx context.Context, userID uint64, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Delete(&Session{})
	return res.RowsAffected, res.Error
}

func (r *Repo) DeleteSessionMessages(ctx context.Context, userID uint64, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Delete(&Message{})
	return res.RowsAffected, res.Error
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListSessionMessages returns the user's records for a session in ascending
// (created_at, id) order.
func (r *Repo) ListSessionMessages(ctx context.Context, userID uint64, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) GetMessageByIdempotencyKey(ctx context.Context, userID uint64, sessionID, key string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND idempotency_key = ?", userID, sessionID, key).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessageOrGetExisting inserts m, but if (user_id, session_id,
// idempotency_key) already exists it returns the stored record instead.
func (r *Repo) InsertMessageOrGetExisting(ctx context.Context, m *Message) (*Message, bool, error) {
	if m.IdempotencyKey == nil || *m.IdempotencyKey == "" {
		m.IdempotencyKey = nil
		if err := r.InsertMessage(ctx, m); err != nil {
			return nil, false, err
		}
		return m, true, nil
	}

	err := r.InsertMessage(ctx, m)
	if err == nil {
		return m, true, nil
	}

	existing, getErr := r.GetMessageByIdempotencyKey(ctx, m.UserID, m.SessionID, *m.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
