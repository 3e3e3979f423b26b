package process

import (
	"regexp"
	"strings"
	"unicode"
)

// minimal run length before a repeated word is collapsed
const repeatRun = 5

var (
	numberChainRe = regexp.MustCompile(`\d+(?:[.\-]\d+){5,}`)
	noiseLineRe   = regexp.MustCompile(`(?m)^[\d \t\r.,:;/\-]{10,}$`)
	spacesRe      = regexp.MustCompile(` {2,}`)
)

// Clean strips the usual speech-to-text artifacts from a transcript: long
// numeric chains, lines of digit noise and stuttered words. Whitespace is
// normalized and the result trimmed.
func Clean(text string) string {
	text = numberChainRe.ReplaceAllString(text, "")
	text = noiseLineRe.ReplaceAllStringFunc(text, func(line string) string {
		if strings.IndexFunc(line, unicode.IsDigit) < 0 {
			return line
		}
		return ""
	})
	text = strings.NewReplacer("\r\n", "\n", "\t", " ").Replace(text)
	text = spacesRe.ReplaceAllString(text, " ")
	text = collapseRepeats(text)

	return strings.TrimSpace(text)
}

// collapseRepeats replaces a word that occurs repeatRun or more times in a row,
// separated only by whitespace, with a single occurrence.
func collapseRepeats(text string) string {
	var (
		b    strings.Builder
		last int    // end of the text already handled
		prev string // word of the current run
		// bounds and length of the current run
		runStart, runEnd, runLen int
	)
	b.Grow(len(text))

	flush := func() {
		if runLen >= repeatRun {
			b.WriteString(prev)
		} else {
			b.WriteString(text[runStart:runEnd])
		}
		runLen = 0
	}

	for i := 0; i < len(text); {
		if !isWordByte(text[i]) {
			i++
			continue
		}
		start := i
		for i < len(text) && isWordByte(text[i]) {
			i++
		}
		word, gap := text[start:i], text[last:start]

		if runLen > 0 && word == prev && strings.TrimSpace(gap) == "" {
			runEnd, last = i, i
			runLen++
			continue
		}
		if runLen > 0 {
			flush()
		}
		b.WriteString(gap)
		prev, runStart, runEnd, runLen = word, start, i, 1
		last = i
	}
	if runLen > 0 {
		flush()
	}
	b.WriteString(text[last:])

	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
