package condition

import "fmt"

// ParseError describes why a condition string did not match the grammar.
type ParseError struct {
	Input      string
	Message    string
	Pos        int    // byte offset in Input
	Suggestion string // "did you mean ':any_checked'?" or ""
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("col %d: %s", e.Pos+1, e.Message)
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[lb]
}

// SuggestFrom finds the closest candidate within maxDist edits. Returns ""
// if nothing is close enough.
func SuggestFrom(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		if d := Levenshtein(input, c); d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return fmt.Sprintf("did you mean '%s'?", best)
	}
	return ""
}
