// Package community maps a member's community score to a level.
package community

import "math"

type Level struct {
	Name     string   `json:"name"`
	MinScore int      `json:"minScore"`
	MaxScore int      `json:"maxScore"`
	Benefits []string `json:"benefits"`
}

// Levels are ordered by MinScore and cover every non-negative score.
var Levels = []Level{
	{Name: "Newcomer", MinScore: 0, MaxScore: 24, Benefits: []string{"Welcome to the community!", "Access to basic features"}},
	{Name: "Helper", MinScore: 25, MaxScore: 49, Benefits: []string{"Priority support", "Helper badge", "Access to helper resources"}},
	{Name: "Contributor", MinScore: 50, MaxScore: 99, Benefits: []string{"Contributor badge", "Event creation privileges", "Featured posts"}},
	{Name: "Champion", MinScore: 100, MaxScore: 199, Benefits: []string{"Champion badge", "Moderation privileges", "Exclusive events"}},
	{Name: "Legend", MinScore: 200, MaxScore: math.MaxInt, Benefits: []string{"Legend status", "All privileges", "Community leadership"}},
}

func levelIndex(score int) int {
	for i, l := range Levels {
		if score >= l.MinScore && score <= l.MaxScore {
			return i
		}
	}
	return 0
}

// LevelFor returns the level containing score; negative scores are Newcomer.
func LevelFor(score int) Level {
	return Levels[levelIndex(score)]
}

// ProgressToNext is the percentage (0–100) travelled through the current level.
func ProgressToNext(score int) float64 {
	i := levelIndex(score)
	if i == len(Levels)-1 {
		return 100
	}
	cur, next := Levels[i], Levels[i+1]
	p := float64(score-cur.MinScore) / float64(next.MinScore-cur.MinScore) * 100
	return math.Max(0, math.Min(100, p))
}

// PointsToNext is how many points remain until the next level.
func PointsToNext(score int) int {
	i := levelIndex(score)
	if i == len(Levels)-1 {
		return 0
	}
	return Levels[i+1].MinScore - score
}

const (
	ActionHelpPostCreated   = "help_post_created"
	ActionHelpPostCompleted = "help_post_completed"
	ActionEventCreated      = "event_created"
	ActionEventAttended     = "event_attended"
	ActionForumPostCreated  = "forum_post_created"
	ActionCommentAdded      = "comment_added"
	ActionLikeReceived      = "like_received"
)

var actionPoints = map[string]int{
	ActionHelpPostCreated:   5,
	ActionHelpPostCompleted: 10,
	ActionEventCreated:      15,
	ActionEventAttended:     3,
	ActionForumPostCreated:  2,
	ActionCommentAdded:      1,
	ActionLikeReceived:      1,
}

// PointsFor returns the award for an action, 0 if unknown.
func PointsFor(action string) int {
	return actionPoints[action]
}

// Award resolves the points for a score request. A known action fixes the
// award; otherwise the explicit points value is used.
func Award(action string, points int) int {
	if p := PointsFor(action); p > 0 {
		return p
	}
	return points
}

// Summary is the score block shown on a profile.
type Summary struct {
	Score          int     `json:"score"`
	Level          string  `json:"level"`
	ProgressToNext float64 `json:"progressToNext"`
	PointsToNext   int     `json:"pointsToNext"`
}

func Summarize(score int) Summary {
	return Summary{
		Score:          score,
		Level:          LevelFor(score).Name,
		ProgressToNext: ProgressToNext(score),
		PointsToNext:   PointsToNext(score),
	}
}
