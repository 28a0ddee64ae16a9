package dag

// fuzzy.go implements the closest-match suggestion spec.md §4.1(e) requires
// for "unknown dependency" errors. No repository in the retrieval pack
// depends on a fuzzy-matching / edit-distance library, so this is
// implemented directly against the standard library -- see DESIGN.md for
// the corresponding grounding-ledger entry.

// closestKey returns the key in candidates with the smallest Levenshtein
// distance to target, or "" if candidates is empty.
func closestKey(target string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein(target, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// levenshtein computes the edit distance between a and b using the
// classic single-row dynamic-programming formulation.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}
