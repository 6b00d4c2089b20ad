package text

import (
	"fmt"
	"strconv"
	"strings"
)

const psalmsBookID = 19

var sinoDigits = [...]string{"", "일", "이", "삼", "사", "오", "육", "칠", "팔", "구"}

// SinoKorean spells n with Sino-Korean numerals (21 -> 이십일, 150 -> 백오십).
// Values outside 0..999 fall back to digits.
func SinoKorean(n int) string {
	switch {
	case n == 0:
		return "영"
	case n < 0 || n > 999:
		return strconv.Itoa(n)
	}
	var b strings.Builder
	writePlace := func(d int, unit string) {
		if d == 0 {
			return
		}
		if d > 1 || unit == "" {
			b.WriteString(sinoDigits[d])
		}
		b.WriteString(unit)
	}
	writePlace(n/100, "백")
	writePlace(n/10%10, "십")
	writePlace(n%10, "")
	return b.String()
}

// ChapterUnit is "편" for Psalms and "장" for every other book.
func ChapterUnit(bookID int, bookName string) string {
	if bookID == psalmsBookID || strings.TrimSpace(bookName) == "시편" {
		return "편"
	}
	return "장"
}

// IntroLine is the spoken chapter announcement, e.g. "창세기 일장.".
func IntroLine(bookName string, bookID, chapter int) string {
	return fmt.Sprintf("%s %s%s.", strings.TrimSpace(bookName), SinoKorean(chapter), ChapterUnit(bookID, bookName))
}
