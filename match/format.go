package match

import "strconv"

func itoa(n int) string {
	return strconv.Itoa(n)
}

// formatRating renders a rating to one decimal place, per spec.md §6.
func formatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', 1, 64)
}
