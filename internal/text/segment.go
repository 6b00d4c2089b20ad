package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the provider-safe chunk size used when none is configured.
const DefaultMaxChars = 1500

// Segment splits cleaned text into chunks of at most limit characters.
// Sentence boundaries are preferred, then clause boundaries; a unit that
// still exceeds the limit is cut at the limit. No characters are dropped.
func Segment(s string, limit int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var units []string
	for _, sentence := range splitAfter(s, isSentenceEnd) {
		if utf8.RuneCountInString(sentence) <= limit {
			units = append(units, sentence)
			continue
		}
		for _, clause := range splitAfter(sentence, isClauseEnd) {
			if utf8.RuneCountInString(clause) <= limit {
				units = append(units, clause)
				continue
			}
			units = append(units, hardSplit(clause, limit)...)
		}
	}
	return pack(units, limit)
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isClauseEnd(r rune) bool {
	switch r {
	case ',', ';', '、', '，', '；':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']':
		return true
	}
	return false
}

// splitAfter cuts s after runs of delimiter runes (and trailing closing
// quotes) that are followed by whitespace or the end of the text.
func splitAfter(s string, isDelim func(rune) bool) []string {
	runes := []rune(s)
	var parts []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isDelim(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && (isDelim(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		if part := strings.TrimSpace(string(runes[start:j])); part != "" {
			parts = append(parts, part)
		}
		start = j
		i = j - 1
	}
	if part := strings.TrimSpace(string(runes[start:])); part != "" {
		parts = append(parts, part)
	}
	return parts
}

func hardSplit(s string, limit int) []string {
	runes := []rune(s)
	var parts []string
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// pack greedily joins units with single spaces while staying within limit.
func pack(units []string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	for _, u := range units {
		n := utf8.RuneCountInString(u)
		switch {
		case curLen == 0:
			cur.WriteString(u)
			curLen = n
		case curLen+1+n <= limit:
			cur.WriteByte(' ')
			cur.WriteString(u)
			curLen += 1 + n
		default:
			chunks = append(chunks, cur.String())
			cur.Reset()
			cur.WriteString(u)
			curLen = n
		}
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
