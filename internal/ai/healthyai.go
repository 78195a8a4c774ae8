package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthyAIProvider talks to the HealthyAI inference backend (chat, readiness
// and exercise advice endpoints).
type HealthyAIProvider struct {
	BaseURL      string
	Client       *http.Client
	ChatTimeout  time.Duration
	ReadyTimeout time.Duration
}

func NewHealthyAIProvider(baseURL string, chatTimeout, readyTimeout time.Duration) *HealthyAIProvider {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if chatTimeout <= 0 {
		chatTimeout = 120 * time.Second
	}
	if readyTimeout <= 0 {
		readyTimeout = 5 * time.Second
	}
	return &HealthyAIProvider{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Client:       &http.Client{},
		ChatTimeout:  chatTimeout,
		ReadyTimeout: readyTimeout,
	}
}

type healthyChatReq struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type healthyErrResp struct {
	Detail string `json:"detail"`
}

func (p *HealthyAIProvider) SendMessage(ctx context.Context, text, sessionID string) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ChatTimeout)
	defer cancel()

	var out Reply
	if err := p.postJSON(ctx, "/api/chat", healthyChatReq{Message: text, SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Reply) == "" {
		return nil, errors.New("healthyai: empty reply")
	}
	return &out, nil
}

func (p *HealthyAIProvider) CheckReady(ctx context.Context) (*Readiness, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ReadyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/ready", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("healthyai: status %d", resp.StatusCode)
	}
	var r Readiness
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Backend wire codes for the exercise endpoint.
var (
	activityCodes = map[string]string{"low": "it", "moderate": "vua", "high": "nhieu"}
	genderCodes   = map[string]string{"male": "nam", "female": "nu", "other": "khac"}
)

type healthyExerciseReq struct {
	Age           int     `json:"tuoi"`
	HeightCm      float64 `json:"chieuCao"`
	WeightKg      float64 `json:"canNang"`
	ActivityLevel string  `json:"mucVanDong"`
	Gender        string  `json:"gioiTinh"`
	BMI           float64 `json:"bmi"`
	BMICategory   string  `json:"bmiCategory"`
}

type healthyExerciseResp struct {
	Title     string          `json:"title"`
	Exercises json.RawMessage `json:"exercises"`
	Frequency any             `json:"frequency"`
	Duration  any             `json:"duration"`
	Notes     any             `json:"notes"`
}

func (p *HealthyAIProvider) SuggestExercise(ctx context.Context, in ExerciseRequest) (*ExerciseAdvice, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ChatTimeout)
	defer cancel()

	activity, ok := activityCodes[in.ActivityLevel]
	if !ok {
		activity = "it"
	}
	gender, ok := genderCodes[in.Gender]
	if !ok {
		gender = "khac"
	}

	var out healthyExerciseResp
	err := p.postJSON(ctx, "/api/health-profile/exercise-suggestion", healthyExerciseReq{
		Age:           in.Age,
		HeightCm:      in.HeightCm,
		WeightKg:      in.WeightKg,
		ActivityLevel: activity,
		Gender:        gender,
		BMI:           in.BMI,
		BMICategory:   in.BMICategory,
	}, &out)
	if err != nil {
		return nil, err
	}

	return &ExerciseAdvice{
		Title:     strings.TrimSpace(out.Title),
		Exercises: NormalizeExercises(out.Exercises),
		Frequency: textOf(out.Frequency),
		Duration:  textOf(out.Duration),
		Notes:     textOf(out.Notes),
	}, nil
}

func (p *HealthyAIProvider) postJSON(ctx context.Context, path string, in, out any) error {
	if p.Client == nil {
		return errors.New("healthyai: http client is nil")
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s", ErrNotReady, readDetail(resp.Body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readDetail(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("healthyai: %s", msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *HealthyAIProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}
	return resp, nil
}

func readDetail(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4*1024))
	var e healthyErrResp
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}

// NormalizeExercises accepts the loosely typed "exercises" field: a list of
// strings, of objects carrying text/name/title/description/content, of other
// scalars, or a single scalar. Blank and null-ish entries are dropped.
func NormalizeExercises(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		var single any
		if json.Unmarshal(raw, &single) != nil {
			return nil
		}
		list = []any{single}
	}

	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		var s string
		switch v := item.(type) {
		case map[string]any:
			for _, k := range []string{"text", "name", "title", "description", "content"} {
				if t := textOf(v[k]); t != "" {
					s = t
					break
				}
			}
		default:
			s = textOf(v)
		}
		switch strings.ToLower(s) {
		case "", "null", "none", "undefined":
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64, bool:
		return strings.TrimSpace(fmt.Sprint(t))
	default:
		return ""
	}
}
