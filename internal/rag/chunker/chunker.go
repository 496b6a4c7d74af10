// Package chunker implements the LLM-driven chunker: a sliding
// token-windowed pass over extracted page text, one structured chat call
// per window, offset remapping back to the full document, overlap
// de-duplication, and page attachment.
//
// Grounded on the teacher's SimpleChunker sliding-window-with-overlap
// shape (internal/rag/chunker/chunker.go), reworked from a chars-per-token
// heuristic into exact token-space windowing via tiktoken-go, and from a
// deterministic splitter into a per-window LLM call per the chunking
// algorithm.
package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/llmclient"
)

const encodingName = "cl100k_base"

// Proposal is one chunk candidate before the ingestion worker assigns it
// a ChunkID, DocID, and ScopeKey.
type Proposal struct {
	Text         string
	Title        string
	Section      string
	Summary      string
	WhyThisChunk string
	StartChar    int
	EndChar      int
	Pages        []int
}

// Chunker drives the windowed LLM chunking algorithm.
type Chunker struct {
	llm           *llmclient.Client
	enc           *tiktoken.Tiktoken
	windowTokens  int
	overlapTokens int
}

// New builds a Chunker. windowTokens must exceed overlapTokens.
func New(llm *llmclient.Client, windowTokens, overlapTokens int) (*Chunker, error) {
	if windowTokens <= overlapTokens {
		return nil, apperr.New(apperr.KindInternal, "chunker: window tokens must exceed overlap tokens")
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load tiktoken encoding", err)
	}
	return &Chunker{llm: llm, enc: enc, windowTokens: windowTokens, overlapTokens: overlapTokens}, nil
}

// Chunk runs the full algorithm over docText, attaching page numbers from
// pages. It fails only if every window's LLM call errors or zero chunks
// survive; a subset of failed windows is tolerated.
func (c *Chunker) Chunk(ctx context.Context, docText string, pages []domain.Page) ([]Proposal, error) {
	tokens := c.enc.Encode(docText, nil, nil)
	if len(tokens) == 0 {
		return nil, apperr.New(apperr.KindValidation, "chunker: document has no extractable text")
	}

	step := c.windowTokens - c.overlapTokens
	var proposals []Proposal
	windowsAttempted := 0
	windowsFailed := 0

	for start := 0; start < len(tokens); start += step {
		end := start + c.windowTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		windowsAttempted++

		baseOffset := len(c.enc.Decode(tokens[:start]))
		windowText := c.enc.Decode(tokens[start:end])

		windowProposals, err := c.chunkWindow(ctx, windowText, baseOffset)
		if err != nil {
			windowsFailed++
		} else {
			proposals = append(proposals, windowProposals...)
		}

		if end == len(tokens) {
			break
		}
	}

	if windowsFailed == windowsAttempted {
		return nil, apperr.New(apperr.KindDependencyFatal, "chunker: every window's LLM call failed")
	}

	proposals = dedupeByOverlap(proposals)
	if len(proposals) == 0 {
		return nil, apperr.New(apperr.KindDependencyFatal, "chunker: no chunks survived")
	}

	attachPages(proposals, pages)
	return proposals, nil
}

const chunkerSystemPrompt = `You split a window of document text into retrieval-ready chunks.
Respond with a JSON object {"chunks": [...]}. Each array element has:
text (string, required, verbatim substring of the window), title, section, summary,
why_this_chunk (why this span is a useful retrieval unit), and optionally
start_char/end_char (0-based offsets of "text" within the window you were given)
and pages (array of page numbers the span touches, if known).
Return only the JSON object, no prose.`

type chunkWindowResponse struct {
	Chunks []domain.LLMChunkResponse `json:"chunks"`
}

func (c *Chunker) chunkWindow(ctx context.Context, windowText string, baseOffset int) ([]Proposal, error) {
	userPrompt := fmt.Sprintf("Window text:\n\n%s", windowText)
	raw, err := c.llm.CompleteJSON(ctx, chunkerSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	var parsed chunkWindowResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedUpstream, "decode chunk window response", err)
	}

	var out []Proposal
	for _, item := range parsed.Chunks {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		var start, end int
		if item.StartChar != nil && item.EndChar != nil {
			start = baseOffset + *item.StartChar
			end = baseOffset + *item.EndChar
		} else {
			idx := strings.Index(windowText, item.Text)
			if idx < 0 {
				continue
			}
			start = baseOffset + idx
			end = start + len(item.Text)
		}
		if end <= start {
			continue
		}
		out = append(out, Proposal{
			Text:         item.Text,
			Title:        item.Title,
			Section:      item.Section,
			Summary:      item.Summary,
			WhyThisChunk: item.WhyThisChunk,
			StartChar:    start,
			EndChar:      end,
		})
	}
	return out, nil
}

// dedupeByOverlap sorts proposals by StartChar and drops later proposals
// whose span overlaps an earlier one by more than 80% of the shorter
// span's length.
func dedupeByOverlap(proposals []Proposal) []Proposal {
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].StartChar < proposals[j].StartChar
	})

	kept := make([]Proposal, 0, len(proposals))
	for _, p := range proposals {
		redundant := false
		for _, k := range kept {
			if overlapRatio(p, k) > 0.8 {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, p)
		}
	}
	return kept
}

func overlapRatio(a, b Proposal) float64 {
	lo := a.StartChar
	if b.StartChar > lo {
		lo = b.StartChar
	}
	hi := a.EndChar
	if b.EndChar < hi {
		hi = b.EndChar
	}
	overlap := hi - lo
	if overlap <= 0 {
		return 0
	}
	aLen := a.EndChar - a.StartChar
	bLen := b.EndChar - b.StartChar
	shorter := aLen
	if bLen < shorter {
		shorter = bLen
	}
	if shorter <= 0 {
		return 0
	}
	return float64(overlap) / float64(shorter)
}

// attachPages maps each proposal's [StartChar, EndChar) span onto the
// page-offset table, mutating proposals in place.
func attachPages(proposals []Proposal, pages []domain.Page) {
	for i := range proposals {
		p := &proposals[i]
		for _, pg := range pages {
			if p.StartChar < pg.EndChar && p.EndChar > pg.StartChar {
				p.Pages = append(p.Pages, pg.Number)
			}
		}
	}
}
