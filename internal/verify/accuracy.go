// Package verify scores transcription hypotheses against reference texts.
package verify

// Score computes the normalized edit-distance accuracy of hypothesis against
// reference: 1 - levenshtein(hypothesis, reference) / max(len). The result is
// clamped to [0,1]. Both strings empty scores 1.0. Callers must not invoke
// Score when no reference exists; an absent reference leaves a job's accuracy
// unset rather than zero.
// Parameters:
//   - hypothesis: transcribed text to score.
//   - reference: ground-truth text.
// Returns:
//   - float64: accuracy in [0,1].
func Score(hypothesis, reference string) float64 {
	h := []rune(hypothesis)
	r := []rune(reference)

	maxLen := len(h)
	if len(r) > maxLen {
		maxLen = len(r)
	}
	if maxLen == 0 {
		return 1.0
	}

	score := 1.0 - float64(levenshtein(h, r))/float64(maxLen)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// levenshtein computes the classic single-character insert/delete/substitute
// edit distance with a two-row DP.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
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
	return prev[len(b)]
}
