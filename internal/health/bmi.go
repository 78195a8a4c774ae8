package health

import (
	"fmt"
	"math"

	"github.com/suPer8Hu/healthyai/internal/common"
)

type Category string

const (
	Underweight Category = "underweight"
	Normal      Category = "normal"
	Overweight  Category = "overweight"
	Obese       Category = "obese"
)

type BMIResult struct {
	Value       float64  `json:"value"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

var descriptions = map[Category]string{
	Underweight: "Your BMI is a little low. Improve your nutrition and train to build muscle.",
	Normal:      "Your BMI is in the ideal range. Keep up your current diet and exercise.",
	Overweight:  "Your BMI is a little high. Combine a healthy diet with regular exercise.",
	Obese:       "Your BMI is high. Talk to a nutrition specialist and increase your activity.",
}

// ComputeBMI returns weight / height² rounded to one decimal. The category
// is taken from the rounded value, so 18.5 is always normal.
func ComputeBMI(heightCm, weightKg float64) (BMIResult, error) {
	if heightCm <= 0 || weightKg <= 0 || math.IsNaN(heightCm) || math.IsNaN(weightKg) {
		return BMIResult{}, fmt.Errorf("%w: height and weight must be positive", common.ErrValidation)
	}
	m := heightCm / 100
	value := math.Round(weightKg/(m*m)*10) / 10
	cat := categorize(value)
	return BMIResult{Value: value, Category: cat, Description: descriptions[cat]}, nil
}

func categorize(v float64) Category {
	switch {
	case v < 18.5:
		return Underweight
	case v < 25:
		return Normal
	case v < 30:
		return Overweight
	default:
		return Obese
	}
}
