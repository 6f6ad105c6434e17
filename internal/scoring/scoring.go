// Package scoring turns raw profile metadata into a trust score. Score is
// a pure function: no I/O, no shared state, and identical input always
// yields identical output. The weights are heuristics, not a model.
package scoring

import (
	"time"

	"trustgate/internal/verification/models"
)

// Score labels.
const (
	LabelHigh     = "high"
	LabelModerate = "moderate"
	LabelLow      = "low"
	LabelVeryLow  = "very-low"
)

// Component caps. They sum to 100 before the automation penalty.
const (
	maxAgePoints        = 30
	verifiedPoints      = 20
	maxAudiencePoints   = 20
	maxActivityPoints   = 20
	maxEngagementPoints = 10
	automationPenalty   = -40
)

// Score rates a profile from 0 to 100. now anchors the account-age
// component so callers (and tests) control the clock.
func Score(p models.Profile, now time.Time) models.Report {
	b := models.Breakdown{
		AccountAge:   agePoints(p.CreatedAt, now),
		Verification: verificationPoints(p.Verified),
		Audience:     audiencePoints(p.Followers, p.Following),
		Activity:     activityPoints(p.Posts, p.Media),
		Engagement:   engagementPoints(p.Favorites),
	}
	if p.Automated {
		b.Automation = automationPenalty
	}

	total := b.AccountAge + b.Verification + b.Audience + b.Activity + b.Engagement + b.Automation
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return models.Report{
		Username:    p.Username,
		Score:       total,
		Label:       label(total),
		Breakdown:   b,
		Profile:     p,
		GeneratedAt: now.UTC(),
	}
}

// agePoints grants up to maxAgePoints, maxing out at five years. Fresh
// accounts are the cheapest thing for a bad actor to mint.
func agePoints(createdAt, now time.Time) int {
	if createdAt.IsZero() || createdAt.After(now) {
		return 0
	}
	days := int(now.Sub(createdAt).Hours() / 24)
	const fullCredit = 5 * 365
	if days >= fullCredit {
		return maxAgePoints
	}
	return days * maxAgePoints / fullCredit
}

func verificationPoints(verified bool) int {
	if verified {
		return verifiedPoints
	}
	return 0
}

// audiencePoints rewards a balanced follower graph. Accounts following
// far more than follow them back look like follow-spam.
func audiencePoints(followers, following int64) int {
	if followers <= 0 {
		return 0
	}
	points := 0
	switch {
	case followers >= 10000:
		points = 12
	case followers >= 1000:
		points = 9
	case followers >= 100:
		points = 6
	default:
		points = 3
	}
	if following <= 0 {
		return points
	}
	ratio := float64(followers) / float64(following)
	switch {
	case ratio >= 1:
		points += 8
	case ratio >= 0.1:
		points += 4
	}
	if points > maxAudiencePoints {
		points = maxAudiencePoints
	}
	return points
}

func activityPoints(posts, media int64) int {
	total := posts + media
	switch {
	case total >= 1000:
		return maxActivityPoints
	case total >= 100:
		return 15
	case total >= 10:
		return 10
	case total >= 1:
		return 5
	default:
		return 0
	}
}

func engagementPoints(favorites int64) int {
	switch {
	case favorites >= 1000:
		return maxEngagementPoints
	case favorites >= 100:
		return 7
	case favorites >= 10:
		return 4
	case favorites >= 1:
		return 2
	default:
		return 0
	}
}

func label(score int) string {
	switch {
	case score >= 75:
		return LabelHigh
	case score >= 50:
		return LabelModerate
	case score >= 25:
		return LabelLow
	default:
		return LabelVeryLow
	}
}
