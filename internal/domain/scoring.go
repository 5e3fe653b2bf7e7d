package domain

// placementPoints maps zero-based rank within one quiz to competition points.
// Ranks past the end of the table earn one point.
var placementPoints = [...]int{10, 8, 6, 5, 4, 3, 2, 1}

// PointsForRank returns the competition points awarded for a zero-based rank.
func PointsForRank(rank int) int {
	if rank < 0 {
		return 0
	}
	if rank < len(placementPoints) {
		return placementPoints[rank]
	}
	return 1
}

// AttemptScore computes the raw attempt score: correct answers weighted by the
// seconds left on the clock. Faster, more accurate attempts score higher.
func AttemptScore(correct, timeLimit, elapsed int) int {
	remaining := timeLimit - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return correct * remaining
}
