package domain

import "time"

// MinStarsForAge returns the star count a GitHub repo must meet to be kept,
// scaled by how long the repo has existed. Fresh repos get a low bar, old
// ones must have proven traction.
func MinStarsForAge(age time.Duration) int {
	days := int(age.Hours() / 24)
	switch {
	case days <= 7:
		return 5
	case days <= 30:
		return 15
	case days <= 90:
		return 30
	default:
		return 50
	}
}

// BenchmarkFeatureKeywords are the README signals at least one of which a
// GitHub candidate must carry to pass the quality gate
var BenchmarkFeatureKeywords = []string{
	"benchmark", "evaluation", "test set", "dataset", "leaderboard",
	"baseline", "performance", "comparison", "ranking", "test suite",
	"metric", "score",
}
