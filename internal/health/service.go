package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/healthyai/internal/ai"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"gorm.io/gorm"
)

const (
	defaultAdvisorTitle     = "Exercise plan"
	defaultAdvisorFrequency = "3-4 times/week"
	defaultAdvisorDuration  = "30-40 minutes/session"
)

type Service struct {
	repo    *Repo
	advisor ai.Advisor
}

// NewService takes an optional advisor; with nil every suggestion comes
// from the table.
func NewService(repo *Repo, advisor ai.Advisor) *Service {
	return &Service{repo: repo, advisor: advisor}
}

func validateProfile(in ProfileInput) (ProfileInput, error) {
	if in.Age < 1 || in.Age > 120 {
		return in, fmt.Errorf("%w: age must be between 1 and 120", common.ErrValidation)
	}
	if in.HeightCm < 50 || in.HeightCm > 260 {
		return in, fmt.Errorf("%w: height_cm must be between 50 and 260", common.ErrValidation)
	}
	if in.WeightKg < 10 || in.WeightKg > 500 {
		return in, fmt.Errorf("%w: weight_kg must be between 10 and 500", common.ErrValidation)
	}
	in.ActivityLevel = ActivityLevel(strings.ToLower(strings.TrimSpace(string(in.ActivityLevel))))
	if !in.ActivityLevel.Valid() {
		return in, fmt.Errorf("%w: activity_level must be low, moderate or high", common.ErrValidation)
	}
	in.Gender = Gender(strings.ToLower(strings.TrimSpace(string(in.Gender))))
	if in.Gender == "" {
		in.Gender = GenderOther
	}
	if !in.Gender.Valid() {
		return in, fmt.Errorf("%w: gender must be male, female or other", common.ErrValidation)
	}
	return in, nil
}

func (s *Service) SaveProfile(ctx context.Context, userID uint64, in ProfileInput) (*Profile, error) {
	if userID == 0 {
		return nil, common.ErrUnauthenticated
	}
	in, err := validateProfile(in)
	if err != nil {
		return nil, err
	}
	p := &Profile{
		UserID:        userID,
		Age:           in.Age,
		HeightCm:      in.HeightCm,
		WeightKg:      in.WeightKg,
		ActivityLevel: in.ActivityLevel,
		Gender:        in.Gender,
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: save profile: %v", common.ErrTransientIO, err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) GetProfile(ctx context.Context, userID uint64) (*Profile, error) {
	if userID == 0 {
		return nil, common.ErrUnauthenticated
	}
	p, err := s.repo.GetByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile: %v", common.ErrTransientIO, err)
	}
	return p, nil
}

// SuggestExercise asks the advisor first. Any advisor failure or unusable
// answer falls back to the table; it never returns an error.
func (s *Service) SuggestExercise(ctx context.Context, p *Profile, bmi BMIResult) Suggestion {
	if s.advisor != nil {
		adv, err := s.advisor.SuggestExercise(ctx, ai.ExerciseRequest{
			Age:           p.Age,
			HeightCm:      p.HeightCm,
			WeightKg:      p.WeightKg,
			ActivityLevel: string(p.ActivityLevel),
			Gender:        string(p.Gender),
			BMI:           bmi.Value,
			BMICategory:   string(bmi.Category),
		})
		if err != nil {
			logger.L.Warn("health: advisor failed, using table", "user_id", p.UserID, "err", err)
		} else if sug, ok := fromAdvice(adv, TierFor(p.Age)); ok {
			return sug
		} else {
			logger.L.Info("health: advisor answer unusable, using table", "user_id", p.UserID)
		}
	}
	return TableSuggestion(p.Age, p.ActivityLevel, bmi)
}

func fromAdvice(adv *ai.ExerciseAdvice, tier Tier) (Suggestion, bool) {
	if adv == nil || strings.TrimSpace(adv.Title) == "" {
		return Suggestion{}, false
	}
	exercises := cleanExercises(adv.Exercises)
	if len(exercises) == 0 {
		return Suggestion{}, false
	}
	return Suggestion{
		Title:     orDefault(adv.Title, defaultAdvisorTitle),
		Exercises: exercises,
		Frequency: orDefault(adv.Frequency, defaultAdvisorFrequency),
		Duration:  orDefault(adv.Duration, defaultAdvisorDuration),
		Notes:     strings.TrimSpace(adv.Notes),
		Tier:      tier,
		Source:    "advisor",
	}, true
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// Overview loads the profile and derives BMI and a suggestion from it.
func (s *Service) Overview(ctx context.Context, userID uint64) (*Overview, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	bmi, err := ComputeBMI(p.HeightCm, p.WeightKg)
	if err != nil {
		return nil, err
	}
	return &Overview{Profile: p, BMI: bmi, Suggestion: s.SuggestExercise(ctx, p, bmi)}, nil
}

// ChatbotContext renders the profile block sent ahead of chat prompts.
func ChatbotContext(p *Profile, bmi BMIResult, sug Suggestion) string {
	var b strings.Builder
	b.WriteString("[PROFILE]\n")
	fmt.Fprintf(&b, "Age: %d\n", p.Age)
	fmt.Fprintf(&b, "Gender: %s\n", p.Gender.Label())
	fmt.Fprintf(&b, "Height: %g cm\n", p.HeightCm)
	fmt.Fprintf(&b, "Weight: %g kg\n", p.WeightKg)
	fmt.Fprintf(&b, "Activity level: %s\n", p.ActivityLevel.Label())
	fmt.Fprintf(&b, "BMI: %.1f (%s)\n", bmi.Value, bmi.Category)
	b.WriteString("[/PROFILE]\n\n")

	b.WriteString("Based on the profile above, suggest light, safe and easy exercise suited to:\n")
	fmt.Fprintf(&b, "- BMI: %s (%.1f)\n", bmi.Category, bmi.Value)
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender.Label())
	fmt.Fprintf(&b, "- Current activity level: %s\n", p.ActivityLevel.Label())
	fmt.Fprintf(&b, "- Age: %d\n\n", p.Age)

	b.WriteString("Reference plan:\n")
	fmt.Fprintf(&b, "- %s\n", sug.Title)
	fmt.Fprintf(&b, "- Frequency: %s\n", sug.Frequency)
	fmt.Fprintf(&b, "- Duration: %s\n", sug.Duration)
	fmt.Fprintf(&b, "- Exercises: %s\n\n", strings.Join(sug.Exercises, ", "))
	fmt.Fprintf(&b, "Notes: %s\n\n", sug.Notes)

	b.WriteString("IMPORTANT: Do not diagnose illness and do not suggest medication. Only give gentle, safe exercise and lifestyle advice.")
	return b.String()
}
