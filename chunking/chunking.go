// Package chunking splits legal documents into embedding-sized chunks using a
// cascade: structural markers (articles, paragraphs, chapters), then blank-line
// paragraphs, then fixed-size windows.
package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strategy records which heuristic produced a chunk
type Strategy string

const (
	StrategyStructural Strategy = "structural"
	StrategyParagraph  Strategy = "paragraph"
	StrategyWindow     Strategy = "window"
)

const (
	DefaultMaxSize = 2000
	DefaultOverlap = 200
)

// Chunk is one piece of a split document
type Chunk struct {
	Index    int
	Heading  string
	Content  string
	Strategy Strategy
}

// Options bounds chunk size, in runes
type Options struct {
	MaxSize int
	Overlap int
}

func (o Options) withDefaults() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Overlap < 0 || o.Overlap >= o.MaxSize {
		o.Overlap = 0
	}
	return o
}

var markerRegex = regexp.MustCompile(`^\s*(Art\.\s*\d+[a-z]*\.?|§\s*\d+[a-z]*\.?|Rozdział\s+[0-9IVXLC]+[a-z]*|DZIAŁ\s+[0-9IVXLC]+[a-z]*)`)

type section struct {
	heading string
	content string
}

// Split runs the cascade over text and returns indexed chunks
func Split(text string, opts Options) []Chunk {
	opts = opts.withDefaults()
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	var chunks []Chunk
	add := func(heading, content string, strategy Strategy) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Heading: heading, Content: content, Strategy: strategy})
	}

	sections := splitStructural(text)
	if len(sections) < 2 {
		for _, p := range splitParagraphs(text, opts.MaxSize) {
			if runeLen(p) <= opts.MaxSize {
				add("", p, StrategyParagraph)
				continue
			}
			for _, w := range splitWindows(p, opts) {
				add("", w, StrategyWindow)
			}
		}
		return chunks
	}

	for _, s := range mergeSmall(sections, opts.MaxSize) {
		if runeLen(s.content) <= opts.MaxSize {
			add(s.heading, s.content, StrategyStructural)
			continue
		}
		for _, p := range splitParagraphs(s.content, opts.MaxSize) {
			if runeLen(p) <= opts.MaxSize {
				add(s.heading, p, StrategyParagraph)
				continue
			}
			for _, w := range splitWindows(p, opts) {
				add(s.heading, w, StrategyWindow)
			}
		}
	}
	return chunks
}

// splitStructural cuts text at lines that open an article, paragraph sign or chapter.
// Text before the first marker becomes a preamble section.
func splitStructural(text string) []section {
	var sections []section
	var current *section
	var lines []string

	flush := func() {
		if current == nil {
			return
		}
		current.content = strings.TrimSpace(strings.Join(lines, "\n"))
		if current.content != "" {
			sections = append(sections, *current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := markerRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &section{heading: strings.TrimSpace(m[1])}
			lines = []string{line}
			continue
		}
		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			current = &section{heading: "(Preamble)"}
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

// mergeSmall joins consecutive sections while they fit in maxSize together
func mergeSmall(sections []section, maxSize int) []section {
	var out []section
	var first, last string
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		heading := first
		if last != first {
			heading = first + " - " + last
		}
		out = append(out, section{heading: heading, content: buf.String()})
		buf.Reset()
	}

	for _, s := range sections {
		if buf.Len() > 0 && runeLen(buf.String())+2+runeLen(s.content) > maxSize {
			flush()
		}
		if buf.Len() == 0 {
			first = s.heading
		} else {
			buf.WriteString("\n\n")
		}
		last = s.heading
		buf.WriteString(s.content)
	}
	flush()
	return out
}

// splitParagraphs groups blank-line separated paragraphs up to maxSize.
// Text without blank lines is split on single newlines instead.
func splitParagraphs(text string, maxSize int) []string {
	sep := "\n\n"
	if !strings.Contains(text, sep) {
		sep = "\n"
	}

	var chunks []string
	var current strings.Builder
	for _, para := range strings.Split(text, sep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && runeLen(current.String())+len(sep)+runeLen(para) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitWindows cuts text into overlapping windows of at most MaxSize runes,
// preferring to end a window at whitespace
func splitWindows(text string, opts Options) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); {
		end := start + opts.MaxSize
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := end
		for i := end; i > start+opts.MaxSize/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[start:cut])))
		next := cut - opts.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
