// Package assembler merges retrieved chunks, conversation history, and
// long-term memory into one bounded context blob for the generation call.
//
// Every free-text input passes through injection scrubbing before
// concatenation. Retrieved document text and prior user turns are the
// primary attack surface of this component; sanitization here is a hard
// requirement, not an optimization.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/answerd/internal/sanitize"
	"github.com/fyrsmithlabs/answerd/internal/session"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// MemoryEntry is a long-term memory item or a modality-tagged auxiliary
// chunk. Tag examples: ENTITIES, KEYWORDS, TRANSCRIPT, FRAME. An empty tag
// renders as plain memory.
type MemoryEntry struct {
	Tag     string
	Content string
}

// Input carries everything available for one request, in priority order:
// document chunks, then recent history, then memory entries.
type Input struct {
	Chunks  []vectorstore.SearchResult
	History []session.Turn
	Memory  []MemoryEntry
}

// Config bounds the assembled context.
type Config struct {
	// HistoryWindow caps how many recent turns are considered. Default 8.
	HistoryWindow int

	// MaxChars bounds the final blob. Lowest-priority and oldest material
	// is dropped first. Default 8000.
	MaxChars int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 8
	}
	if c.MaxChars == 0 {
		c.MaxChars = 8000
	}
}

// Assembler builds bounded context strings.
type Assembler struct {
	config Config
}

// New creates an Assembler.
func New(config Config) *Assembler {
	config.ApplyDefaults()
	return &Assembler{config: config}
}

// Assemble produces the context blob. Sections are added in priority
// order until the character budget runs out: document chunks first, then
// the most recent history turns, then memory entries.
func (a *Assembler) Assemble(input Input) string {
	budget := a.config.MaxChars
	var sections []string

	if doc := a.documentSection(input.Chunks, budget); doc != "" {
		sections = append(sections, doc)
		budget -= len(doc) + 2
	}
	if hist := a.historySection(input.History, budget); hist != "" {
		sections = append(sections, hist)
		budget -= len(hist) + 2
	}
	if mem := a.memorySection(input.Memory, budget); mem != "" {
		sections = append(sections, mem)
	}

	return strings.Join(sections, "\n\n")
}

// documentSection labels each chunk with its source and relevance
// percentage. The section is truncated hard if it alone exceeds the budget.
func (a *Assembler) documentSection(chunks []vectorstore.SearchResult, budget int) string {
	if len(chunks) == 0 || budget <= 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant document excerpts:\n")
	for _, c := range chunks {
		source := c.FileID
		if source == "" {
			source = c.ID
		}
		entry := fmt.Sprintf("[Source: %s | Relevance: %.0f%%]\n%s\n",
			source, c.Score*100, sanitize.Scrub(c.Content))
		if b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
	}

	return truncateToRune(strings.TrimRight(b.String(), "\n"), budget)
}

// truncateToRune cuts s to at most n bytes, backing the cut off to a rune
// boundary so a multi-byte character is never split.
func truncateToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// historySection renders the most recent turns that fit, oldest first.
// When the budget forces trimming, older turns are dropped before newer
// ones.
func (a *Assembler) historySection(history []session.Turn, budget int) string {
	if len(history) == 0 || budget <= 0 {
		return ""
	}
	if len(history) > a.config.HistoryWindow {
		history = history[len(history)-a.config.HistoryWindow:]
	}

	const header = "Recent conversation:\n"
	remaining := budget - len(header)
	if remaining <= 0 {
		return ""
	}

	// Walk newest to oldest, keeping turns while they fit.
	var kept []string
	for i := len(history) - 1; i >= 0; i-- {
		line := fmt.Sprintf("%s: %s", history[i].Role, sanitize.Scrub(history[i].Content))
		if len(line)+1 > remaining {
			break
		}
		kept = append(kept, line)
		remaining -= len(line) + 1
	}
	if len(kept) == 0 {
		return ""
	}

	// Reverse back to chronological order.
	var b strings.Builder
	b.WriteString(header)
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString(kept[i])
		if i > 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// memorySection renders tagged entries in order while they fit.
func (a *Assembler) memorySection(memory []MemoryEntry, budget int) string {
	if len(memory) == 0 || budget <= 0 {
		return ""
	}

	var b strings.Builder
	for _, m := range memory {
		var line string
		if m.Tag != "" {
			line = fmt.Sprintf("[%s] %s", strings.ToUpper(m.Tag), sanitize.Scrub(m.Content))
		} else {
			line = sanitize.Scrub(m.Content)
		}
		if b.Len()+len(line)+1 > budget {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
