package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/healthyai/internal/auth"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/email"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"github.com/suPer8Hu/healthyai/internal/notify"
	"gorm.io/gorm"
)

const (
	TokenTTL            = 24 * time.Hour
	ResetCooldown       = 60 * time.Second
	resetPasswordLength = 10
	minPasswordLength   = 6
)

// ErrResetTooSoon is returned while the reset cooldown for an email is running.
var ErrResetTooSoon = errors.New("account: password reset requested too recently")

// Cooldown throttles password resets per email.
type Cooldown interface {
	TryResetCooldown(ctx context.Context, email string, ttl time.Duration) (bool, error)
}

type Service struct {
	repo      *Repo
	jwtSecret string
	mailer    email.Sender
	cooldown  Cooldown
}

func NewService(repo *Repo, jwtSecret string, mailer email.Sender, cooldown Cooldown) *Service {
	return &Service{repo: repo, jwtSecret: jwtSecret, mailer: mailer, cooldown: cooldown}
}

type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func validPin(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	addr := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || addr == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password required", common.ErrValidation)
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return nil, fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}
	var pin *string
	if p := strings.TrimSpace(in.PinCode); p != "" {
		if !validPin(p) {
			return nil, fmt.Errorf("%w: pin code must be exactly 6 digits", common.ErrValidation)
		}
		pin = &p
	}

	for _, f := range [][2]string{{"username", username}, {"email", addr}} {
		field, value := f[0], f[1]
		n, err := s.repo.CountByField(ctx, field, value)
		if err != nil {
			return nil, fmt.Errorf("%w: check %s: %v", common.ErrTransientIO, field, err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: %s already registered", common.ErrValidation, field)
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		UID:          uuid.NewString(),
		Username:     username,
		Email:        addr,
		PasswordHash: hash,
		Role:         RoleUser,
		Status:       StatusActive,
		PinCode:      pin,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("%w: create user (maybe username or email already exists)", common.ErrValidation)
	}
	return u, nil
}

// Login accepts a username or an email.
func (s *Service) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password required", common.ErrValidation)
	}
	u, err := s.repo.FindByLogin(ctx, login)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", common.ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	if u.Status != StatusActive || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("%w: invalid credentials", common.ErrUnauthenticated)
	}
	token, err := auth.SignJWT(u.ID, u.Email, s.jwtSecret, TokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

func (s *Service) Me(ctx context.Context, userID uint64) (*User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, login, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}
	u, err := s.repo.FindByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: invalid credentials", common.ErrUnauthenticated)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	if !auth.CheckPassword(u.PasswordHash, oldPassword) {
		return fmt.Errorf("%w: invalid credentials", common.ErrUnauthenticated)
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	return nil
}

func randomPassword(n int) (string, error) {
	const letters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		k, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[k.Int64()]
	}
	return string(out), nil
}

// ResetPassword replaces the password of the account matching both email
// and username with a random one and mails it. The new hash is only kept
// if the mail was sent. Unknown accounts succeed without mail, and the
// cooldown applies to every address, so responses do not reveal which
// accounts exist.
func (s *Service) ResetPassword(ctx context.Context, addr, username string) error {
	addr = strings.ToLower(strings.TrimSpace(addr))
	username = strings.TrimSpace(username)
	if addr == "" || username == "" {
		return fmt.Errorf("%w: email and username required", common.ErrValidation)
	}

	if s.cooldown != nil {
		ok, err := s.cooldown.TryResetCooldown(ctx, addr, ResetCooldown)
		if err != nil {
			return fmt.Errorf("%w: cooldown: %v", common.ErrTransientIO, err)
		}
		if !ok {
			return ErrResetTooSoon
		}
	}

	u, err := s.repo.FindByEmailAndUsername(ctx, addr, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.L.Info("account: reset requested for unknown account")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}

	password, err := randomPassword(resetPasswordLength)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	return s.repo.WithTx(ctx, func(tx *Repo) error {
		if err := tx.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return fmt.Errorf("%w: %v", common.ErrTransientIO, err)
		}
		body := "Hello " + u.Username + ",\n\n" +
			"Your HealthyAI password has been reset.\n\n" +
			"New password: " + password + "\n\n" +
			"Please sign in and change it as soon as possible.\n\n" +
			"HealthyAI\n"
		if err := s.mailer.SendText(u.Email, "HealthyAI password reset", body); err != nil {
			logger.L.Warn("account: reset mail failed", "user_id", u.ID, "err", err)
			return fmt.Errorf("%w: send mail: %v", common.ErrTransientIO, err)
		}
		return nil
	})
}

// GetSettings returns stored settings or the defaults.
func (s *Service) GetSettings(ctx context.Context, userID uint64) (*Settings, error) {
	if userID == 0 {
		return nil, common.ErrUnauthenticated
	}
	st, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d := defaultSettings(userID)
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	return st, nil
}

func (s *Service) UpdateSettings(ctx context.Context, userID uint64, patch SettingsPatch) (*Settings, error) {
	st, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch.PushNotifications != nil {
		st.PushNotifications = *patch.PushNotifications
	}
	if patch.NotificationPermission != nil {
		p := notify.Permission(strings.ToLower(strings.TrimSpace(*patch.NotificationPermission)))
		switch p {
		case notify.PermissionDefault, notify.PermissionGranted, notify.PermissionDenied:
			st.NotificationPermission = string(p)
		default:
			return nil, fmt.Errorf("%w: notification_permission must be default, granted or denied", common.ErrValidation)
		}
	}
	if patch.Language != nil {
		if v := strings.TrimSpace(*patch.Language); v != "" {
			st.Language = v
		}
	}
	if patch.Theme != nil {
		if v := strings.TrimSpace(*patch.Theme); v != "" {
			st.Theme = v
		}
	}
	if err := s.repo.UpsertSettings(ctx, st); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientIO, err)
	}
	return s.GetSettings(ctx, userID)
}

// NotificationPrefs lets the reminder poller gate notifications on settings.
func (s *Service) NotificationPrefs(ctx context.Context, userID uint64) (notify.Prefs, error) {
	st, err := s.GetSettings(ctx, userID)
	if err != nil {
		return notify.Prefs{}, err
	}
	return notify.Prefs{Permission: notify.Permission(st.NotificationPermission), Push: st.PushNotifications}, nil
}
