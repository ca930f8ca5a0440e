package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	cases := map[int]string{
		-5: "Newcomer", 0: "Newcomer", 24: "Newcomer",
		25: "Helper", 49: "Helper",
		50: "Contributor", 99: "Contributor",
		100: "Champion", 199: "Champion",
		200: "Legend", 100000: "Legend",
	}
	for score, want := range cases {
		assert.Equal(t, want, LevelFor(score).Name, "score %d", score)
	}
}

func TestProgressAndPoints(t *testing.T) {
	assert.InDelta(t, 0, ProgressToNext(0), 0.001)
	assert.InDelta(t, 48, ProgressToNext(12), 0.001)
	assert.InDelta(t, 50, ProgressToNext(75), 0.001)
	assert.InDelta(t, 100, ProgressToNext(250), 0.001)

	assert.Equal(t, 25, PointsToNext(0))
	assert.Equal(t, 1, PointsToNext(199))
	assert.Equal(t, 0, PointsToNext(500))
}

func TestPointsFor(t *testing.T) {
	assert.Equal(t, 5, PointsFor(ActionHelpPostCreated))
	assert.Equal(t, 10, PointsFor(ActionHelpPostCompleted))
	assert.Equal(t, 15, PointsFor(ActionEventCreated))
	assert.Equal(t, 3, PointsFor(ActionEventAttended))
	assert.Equal(t, 2, PointsFor(ActionForumPostCreated))
	assert.Equal(t, 1, PointsFor(ActionCommentAdded))
	assert.Equal(t, 1, PointsFor(ActionLikeReceived))
	assert.Zero(t, PointsFor("unknown"))
}

func TestAward(t *testing.T) {
	assert.Equal(t, 15, Award(ActionEventCreated, 999))
	assert.Equal(t, 7, Award("", 7))
	assert.Equal(t, 7, Award("unknown", 7))
	assert.Zero(t, Award("unknown", 0))
	assert.Equal(t, -3, Award("", -3))
}

func TestSummarize(t *testing.T) {
	s := Summarize(30)
	assert.Equal(t, "Helper", s.Level)
	assert.Equal(t, 20, s.PointsToNext)
}
