package extraction

import "strings"

var positiveWords = []string{
	"good", "great", "excellent", "best", "love", "awesome", "fantastic",
	"helpful", "reliable", "recommended", "popular", "leading", "trusted",
	"works", "solved", "success", "strong", "top",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "worst", "hate", "broken", "error",
	"fail", "problem", "issue", "bug", "unreliable", "avoid", "poor",
	"weak", "expensive", "slow", "lacking",
}

// scoreSentiment scores a snippet of text on a 0-100 scale where 50 is
// neutral. Lexicon based: each positive word shifts the score up, each
// negative word down.
func scoreSentiment(content string) float64 {
	content = strings.ToLower(content)

	positiveCount := 0
	negativeCount := 0

	for _, word := range positiveWords {
		if strings.Contains(content, word) {
			positiveCount++
		}
	}

	for _, word := range negativeWords {
		if strings.Contains(content, word) {
			negativeCount++
		}
	}

	score := 50.0 + 10.0*float64(positiveCount-negativeCount)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
