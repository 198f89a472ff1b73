package accuracy

import (
	"strings"

	"github.com/aristath/dr-ratings/internal/domain"
)

// HistoryPoint is one entry HTTPFacade's frontend-logic endpoint scores,
// ordered newest-first (as read from rating_history).
type HistoryPoint struct {
	Rating    domain.Label
	Prev      domain.Label
	ChangePct *float64
}

// RatingScore maps a label to its ordinal position on the five-point scale,
// 0 for anything unrecognized.
func RatingScore(rating domain.Label) int {
	switch strings.ToLower(string(rating)) {
	case "strong buy":
		return 5
	case "buy":
		return 4
	case "neutral":
		return 3
	case "sell":
		return 2
	case "strong sell":
		return 1
	default:
		return 0
	}
}

// FrontendAccuracy implements the HTTP-only scoring scheme: it never writes
// to rating_accuracy. points is processed oldest-first internally (the
// input is newest-first, matching a rating_history query); filterRating, if
// non-empty, restricts scoring to points whose current rating matches it.
func FrontendAccuracy(points []HistoryPoint, filterRating domain.Label) domain.FrontendAccuracy {
	if len(points) == 0 {
		return domain.FrontendAccuracy{}
	}

	filter := strings.ToLower(string(filterRating))
	correct, incorrect := 0, 0

	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		currRating := strings.ToLower(string(p.Rating))
		prevRating := strings.ToLower(string(p.Prev))
		if currRating == "" || prevRating == "" || p.ChangePct == nil {
			continue
		}
		if filter != "" && currRating != filter {
			continue
		}

		currScore := RatingScore(p.Rating)
		prevScore := RatingScore(p.Prev)
		direction := currScore - prevScore
		change := *p.ChangePct
		isPositive := currScore >= 4 // Buy, Strong Buy

		isCorrect := false
		switch {
		case direction == 0:
			if isPositive {
				isCorrect = change > 0
			} else {
				isCorrect = change < 0
			}
		case direction > 0 && change > 0:
			isCorrect = true
		case direction < 0 && change < 0:
			isCorrect = true
		}

		if isCorrect {
			correct++
		} else {
			incorrect++
		}
	}

	total := correct + incorrect
	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total) * 100
	}
	return domain.FrontendAccuracy{
		Accuracy:  roundTo2(accuracy),
		Correct:   correct,
		Incorrect: incorrect,
		Total:     total,
	}
}
