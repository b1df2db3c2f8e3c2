// Package match decides whether a learner's spoken or typed utterance counts
// as a correct reply to a scripted prompt. Spoken transcripts rarely match
// expected phrasing verbatim, so correctness is a lenient bag-of-words
// overlap, not string equality.
package match

import "strings"

// IsCorrect reports whether userText matches any of the expected options.
//
// Both sides are normalized identically (lowercase, characters outside
// [a-z ] stripped) and tokenized into word sets. An option matches when the
// overlap with the user's words is at least min(2, option word count).
// Empty user text never matches.
func IsCorrect(userText string, expectedOptions []string) bool {
	userWords := wordSet(normalize(userText))
	if len(userWords) == 0 {
		return false
	}

	for _, option := range expectedOptions {
		optionWords := wordSet(normalize(option))
		if len(optionWords) == 0 {
			continue
		}

		threshold := 2
		if len(optionWords) < threshold {
			threshold = len(optionWords)
		}

		overlap := 0
		for word := range optionWords {
			if _, ok := userWords[word]; ok {
				overlap++
				if overlap >= threshold {
					return true
				}
			}
		}
	}

	return false
}

// normalize lowercases s and strips every character outside [a-z ].
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func wordSet(s string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		words[w] = struct{}{}
	}
	return words
}
