package padding

// Tolerance returns the acceptable absolute error for a target token count:
// 5 tokens below 1000, 1% (at least 5) below 10000, and 0.5% (at least 10) above.
func Tolerance(target int) int {
	switch {
	case target < 1000:
		return 5
	case target < 10000:
		return max(5, target/100)
	default:
		return max(10, target/200)
	}
}
