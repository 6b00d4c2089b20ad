package text

import "strings"

// Part is one spoken piece of a verse.
type Part struct {
	Text       string
	PauseAfter bool
}

// SplitBraces breaks raw verse text at closing braces. The directive text
// between '{' and '}' is not spoken; the piece before it is flagged so a
// pause follows. Returned texts are cleaned and never empty.
func SplitBraces(raw string) []Part {
	pieces := strings.Split(raw, "}")
	var parts []Part
	for i, piece := range pieces {
		closed := i < len(pieces)-1
		if closed {
			if k := strings.LastIndex(piece, "{"); k >= 0 {
				piece = piece[:k]
			}
		}
		cleaned := Clean(piece)
		if cleaned == "" {
			if closed && len(parts) > 0 {
				parts[len(parts)-1].PauseAfter = true
			}
			continue
		}
		parts = append(parts, Part{Text: cleaned, PauseAfter: closed})
	}
	return parts
}

// WholeVerse returns the verse as a single part without brace handling.
func WholeVerse(raw string) []Part {
	cleaned := Clean(raw)
	if cleaned == "" {
		return nil
	}
	return []Part{{Text: cleaned}}
}
