package document

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is a slice of document text small enough for one generation request.
type Chunk struct {
	Text  string
	Pages []int
}

// Split cuts pages into chunks of at most maxChars characters, breaking at
// sentence ends. A single sentence longer than maxChars becomes its own chunk.
func Split(pages []Page, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = 12000
	}

	var (
		chunks []Chunk
		sb     strings.Builder
		size   int
		cur    []int
	)
	flush := func() {
		if text := strings.TrimSpace(sb.String()); text != "" {
			chunks = append(chunks, Chunk{Text: text, Pages: cur})
		}
		sb.Reset()
		size = 0
		cur = nil
	}

	for _, p := range pages {
		for _, sentence := range sentences(p.Text) {
			n := utf8.RuneCountInString(sentence)
			if size > 0 && size+n+1 > maxChars {
				flush()
			}
			if len(cur) == 0 || cur[len(cur)-1] != p.Number {
				cur = append(cur, p.Number)
			}
			sb.WriteString(sentence)
			sb.WriteString(" ")
			size += n + 1
		}
	}
	flush()
	return chunks
}

// sentences splits text after '.', '!' or '?' followed by whitespace, and
// at blank lines.
func sentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
		start = end
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := i+1 < len(runes)
		switch {
		case (r == '.' || r == '!' || r == '?') && (!next || unicode.IsSpace(runes[i+1])):
			emit(i + 1)
		case r == '\n' && next && runes[i+1] == '\n':
			emit(i + 1)
		}
	}
	emit(len(runes))
	return out
}
