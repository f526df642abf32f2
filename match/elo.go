package match

import "math"

// score is a match outcome from one participant's point of view.
type score float64

const (
	scoreWin  score = 1.0
	scoreLoss score = 0.0
	scoreDraw score = 0.5
)

// eloDelta computes the rating change for a participant rated self against
// an opponent rated opp, given the outcome s, rounded to one decimal place.
func eloDelta(self, opp float64, s score, k float64) float64 {
	expected := 1.0 / (1.0 + math.Pow(10, (opp-self)/400))
	delta := k * (float64(s) - expected)
	return math.Round(delta*10) / 10
}
