// Package scoring holds the pure helpers used to grade and present a quiz.
package scoring

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

const (
	// LowTimeThreshold and CriticalTimeThreshold are in seconds remaining.
	LowTimeThreshold      = 300
	CriticalTimeThreshold = 60
)

const (
	TimeLevelNormal   = "normal"
	TimeLevelLow      = "low"
	TimeLevelCritical = "critical"
)

const (
	GradeExcellent     = "excellent"
	GradeGood          = "good"
	GradeNeedsPractice = "needs_practice"
)

var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Score returns the percentage of correct answers rounded half up.
// A zero total scores 0.
func Score(total, correct int) int {
	return percentage(correct, total)
}

// CompletionPercentage is the share of attempted questions, rounded like Score.
func CompletionPercentage(total, attempted int) int {
	return percentage(attempted, total)
}

func percentage(part, total int) int {
	if total <= 0 {
		return 0
	}

	p := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)

	return int(p.IntPart())
}

// FormatDuration renders seconds as MM:SS. Minutes are not capped at 59.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// IsValidEmail is a syntactic check only.
func IsValidEmail(s string) bool {
	return emailRegexp.MatchString(s)
}

func TimeLevel(remaining int) string {
	switch {
	case remaining <= CriticalTimeThreshold:
		return TimeLevelCritical
	case remaining <= LowTimeThreshold:
		return TimeLevelLow
	default:
		return TimeLevelNormal
	}
}

func Grade(score int) string {
	switch {
	case score >= 80:
		return GradeExcellent
	case score >= 60:
		return GradeGood
	default:
		return GradeNeedsPractice
	}
}

// Feedback is the message shown with a score on the results screen.
func Feedback(score int) string {
	switch {
	case score >= 90:
		return "Outstanding performance!"
	case score >= 80:
		return "Great job! Well done!"
	case score >= 70:
		return "Good work! Keep it up!"
	case score >= 60:
		return "Not bad! Room for improvement."
	default:
		return "Keep practicing! You'll get better!"
	}
}
