package analyzer

// Similarity scoring over ordered sequences of discrete tokens. Both
// functions are pure, deterministic and symmetric under argument swap,
// and tolerate zero-length sequences: two empty sequences score 1.0,
// exactly one empty scores 0.0.

// SequenceSimilarity scores two sequences by longest common subsequence:
// 2*L/(n+m) where L is the LCS length. Order is preserved, gaps are
// allowed on either side.
func SequenceSimilarity[T comparable](a, b []T) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	l := lcsLength(a, b)
	return (2.0 * float64(l)) / float64(len(a)+len(b))
}

// EditSimilarity scores two sequences by unit-cost Levenshtein distance:
// (n+m-D)/(n+m).
func EditSimilarity[T comparable](a, b []T) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	d := editDistance(a, b)
	total := len(a) + len(b)
	return float64(total-d) / float64(total)
}

// lcsLength computes the LCS length with a rolling two-row table.
// Submissions can reach several thousand tokens, so the full n*m table
// is avoided; memory is O(min(n,m)).
func lcsLength[T comparable](a, b []T) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(b)]
}

// editDistance computes the minimum number of insertions, deletions and
// substitutions (unit cost each) turning a into b, with the same rolling
// row strategy as lcsLength.
func editDistance[T comparable](a, b []T) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			best := prev[j-1] + cost
			if del := prev[j] + 1; del < best {
				best = del
			}
			if ins := curr[j-1] + 1; ins < best {
				best = ins
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
