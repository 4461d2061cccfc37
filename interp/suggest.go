package interp

// nearestName returns the candidate closest to target by Levenshtein
// edit distance, for "undeclared variable %q, did you mean %q?"
// diagnostics (spec.md §7). Returns ("", false) if candidates is empty.
func nearestName(target string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	bestDist := editDistance(target, best)
	for _, c := range candidates[1:] {
		if d := editDistance(target, c); d < bestDist {
			bestDist, best = d, c
		}
	}
	// A suggestion more than (len(target)+1)/2+1 edits away is not
	// useful; let the caller fall back to a plain "undeclared" message.
	if bestDist > (len(target)+1)/2+1 {
		return "", false
	}
	return best, true
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
