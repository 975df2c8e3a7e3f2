package domain

// Relevance converts a raw vector distance into a normalized score in (0, 1],
// higher is better, 1.0 only at distance 0: 1/(1+d).
//
// Monotonicity holds for any non-negative distance metric. Both store drivers
// report cosine distance (1 - cos, range [0, 2]); do not feed scores from a
// different metric space (e.g. web search ranks) through this function.
func Relevance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / (1.0 + distance)
}
