package extractive

import "strings"

const (
	defaultMinTextLength     = 100
	defaultMinSentenceLength = 20
	defaultMaxSentences      = 3
)

// Summarizer keeps the leading substantial sentences of a text.
type Summarizer struct {
	minTextLength     int
	minSentenceLength int
	maxSentences      int
}

func New() *Summarizer {
	return &Summarizer{
		minTextLength:     defaultMinTextLength,
		minSentenceLength: defaultMinSentenceLength,
		maxSentences:      defaultMaxSentences,
	}
}

// Summarize returns short texts unchanged. Longer texts are cut to the first
// sentences longer than the minimum sentence length; when there are not more
// of those than the sentence budget the whole text is kept.
func (s *Summarizer) Summarize(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < s.minTextLength {
		return text
	}

	kept := make([]string, 0, s.maxSentences+1)
	for _, sentence := range strings.Split(text, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= s.minSentenceLength {
			continue
		}
		kept = append(kept, sentence)
		if len(kept) > s.maxSentences {
			break
		}
	}
	if len(kept) <= s.maxSentences {
		return text
	}
	return strings.Join(kept[:s.maxSentences], ". ") + "."
}
