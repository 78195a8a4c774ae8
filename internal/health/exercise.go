package health

import "strings"

type ActivityLevel string

const (
	ActivityLow      ActivityLevel = "low"
	ActivityModerate ActivityLevel = "moderate"
	ActivityHigh     ActivityLevel = "high"
)

func (a ActivityLevel) Valid() bool {
	return a == ActivityLow || a == ActivityModerate || a == ActivityHigh
}

func (a ActivityLevel) Label() string {
	switch a {
	case ActivityLow:
		return "Low"
	case ActivityModerate:
		return "Moderate"
	case ActivityHigh:
		return "High"
	}
	return string(a)
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	case GenderOther:
		return "Other"
	}
	return string(g)
}

// Tier is the exercise intensity, picked from the profile before any
// exercise text is chosen.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierLowImpact Tier = "low_impact"
)

const lowImpactAge = 50

func TierFor(age int) Tier {
	if age >= lowImpactAge {
		return TierLowImpact
	}
	return TierStandard
}

type Suggestion struct {
	Title     string   `json:"title"`
	Exercises []string `json:"exercises"`
	Frequency string   `json:"frequency"`
	Duration  string   `json:"duration"`
	Notes     string   `json:"notes"`
	Tier      Tier     `json:"tier"`
	Source    string   `json:"source"` // "advisor" or "table"
}

type plan struct {
	title     string
	standard  []string
	lowImpact []string
	frequency string
	duration  string
	notes     string
}

func (p plan) exercises(t Tier) []string {
	if t == TierLowImpact && len(p.lowImpact) > 0 {
		return p.lowImpact
	}
	return p.standard
}

var (
	underweightPlan = plan{
		title: "Build muscle and overall health",
		standard: []string{
			"Brisk walking for 20-30 minutes",
			"Gentle exercise (yoga, pilates)",
			"Light weights or bodyweight exercises",
			"Swimming (if available)",
		},
		frequency: "3-4 times/week",
		duration:  "20-30 minutes/session",
		notes:     "Pair training with a protein-rich diet to build muscle.",
	}

	normalPlans = map[ActivityLevel]plan{
		ActivityLow: {
			title: "Maintain health and fitness",
			standard: []string{
				"Walk 30 minutes every day",
				"Light exercise 2-3 times a week",
				"Cycling or swimming",
				"Yoga or stretching",
			},
			frequency: "3-4 times/week",
			duration:  "30-40 minutes/session",
			notes:     "Start slowly and build up intensity over time.",
		},
		ActivityModerate: {
			title: "Maintain health and fitness",
			standard: []string{
				"Running or brisk walking",
				"Full-body workout",
				"Cycling or swimming",
				"Moderate weight training",
			},
			lowImpact: []string{
				"Brisk walking or light exercise",
				"Full-body mobility workout",
				"Cycling or swimming",
				"Light resistance bands",
			},
			frequency: "4-5 times/week",
			duration:  "40-50 minutes/session",
			notes:     "Keep up your current routine.",
		},
		ActivityHigh: {
			title: "Maintain health and fitness",
			standard: []string{
				"Running or HIIT",
				"Weights and full-body workout",
				"Swimming or cycling",
				"Contact sports (if you enjoy them)",
			},
			lowImpact: []string{
				"Walking or light exercise",
				"Light weights and full-body mobility",
				"Swimming or cycling",
				"Tai chi or gentle group classes",
			},
			frequency: "5-6 times/week",
			duration:  "45-60 minutes/session",
			notes:     "Great work! Keep it up.",
		},
	}

	overweightPlan = plan{
		title: "Lose weight and build strength",
		standard: []string{
			"Brisk walking or light jogging",
			"Cardio (jump rope, aerobics)",
			"Full-body workout",
			"Cycling or swimming",
		},
		lowImpact: []string{
			"Brisk walking",
			"Low-impact cardio (water aerobics, stationary bike)",
			"Full-body workout",
			"Cycling or swimming",
		},
		frequency: "4-5 times/week",
		duration:  "40-50 minutes/session",
		notes:     "Combine with a balanced diet for the best results.",
	}

	obesePlan = plan{
		title: "Exercise safely to improve your health",
		standard: []string{
			"Slow walking, gradually increasing pace",
			"Light exercise at home",
			"Yoga or stretching",
			"Swimming (if available)",
		},
		frequency: "3-4 times/week",
		duration:  "20-30 minutes/session",
		notes:     "Start slowly and build up. Check with your doctor before you begin.",
	}
)

func planFor(cat Category, level ActivityLevel) plan {
	switch cat {
	case Underweight:
		return underweightPlan
	case Normal:
		if p, ok := normalPlans[level]; ok {
			return p
		}
		return normalPlans[ActivityHigh]
	case Overweight:
		return overweightPlan
	default:
		return obesePlan
	}
}

// TableSuggestion is the deterministic plan for a profile.
func TableSuggestion(age int, level ActivityLevel, bmi BMIResult) Suggestion {
	tier := TierFor(age)
	p := planFor(bmi.Category, level)

	s := Suggestion{
		Title:     p.title,
		Exercises: append([]string(nil), p.exercises(tier)...),
		Frequency: p.frequency,
		Duration:  p.duration,
		Notes:     p.notes,
		Tier:      tier,
		Source:    "table",
	}
	switch {
	case tier == TierLowImpact:
		s.Frequency = "3-4 times/week"
		s.Duration = "20-30 minutes/session"
		s.Notes += " Keep training gentle and suited to your age."
	case age >= 30 && bmi.Category != Normal:
		s.Notes += " Warm up thoroughly before training and rest well afterwards."
	}
	return s
}

func cleanExercises(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" || e == "null" || e == "undefined" {
			continue
		}
		out = append(out, e)
	}
	return out
}
