// Package entityextract extracts named entities from a chunk's text via a
// single structured LLM call and derives stable entity IDs so the same
// real-world entity mentioned in different chunks MERGEs onto one graph
// node.
package entityextract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/llmclient"
)

// Extractor issues one entity-extraction LLM call per chunk.
type Extractor struct {
	llm *llmclient.Client
}

// New builds an Extractor.
func New(llm *llmclient.Client) *Extractor {
	return &Extractor{llm: llm}
}

const entitySystemPrompt = `You extract named entities mentioned in a chunk of document text.
Respond with a JSON object {"entities": [...]}. Each array element has
name (string, required) and type (string, required; a short category such as
person, organization, location, product, or other). If no entities are
mentioned, return {"entities": []}. Return only the JSON object, no prose.`

type entityResponse struct {
	Entities []domain.LLMEntity `json:"entities"`
}

// Extract returns the normalized entities mentioned in text. An empty
// slice with a nil error is a valid, expected outcome.
func (e *Extractor) Extract(ctx context.Context, text string) ([]domain.Entity, error) {
	raw, err := e.llm.CompleteJSON(ctx, entitySystemPrompt, text)
	if err != nil {
		return nil, err
	}
	var parsed entityResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedUpstream, "decode entity response", err)
	}

	seen := map[string]struct{}{}
	out := make([]domain.Entity, 0, len(parsed.Entities))
	for _, item := range parsed.Entities {
		name := normalizeName(item.Name)
		typ := normalizeName(item.Type)
		if name == "" || typ == "" {
			continue
		}
		id := stableEntityID(name, typ)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, domain.Entity{EntityID: id, Name: item.Name, Type: item.Type})
	}
	return out, nil
}

// normalizeName trims, collapses internal whitespace, and case-folds for
// stable ID derivation.
func normalizeName(s string) string {
	fields := strings.Fields(s)
	return strings.ToLower(strings.Join(fields, " "))
}

func stableEntityID(normalizedName, normalizedType string) string {
	sum := sha256.Sum256([]byte(normalizedName + "\x00" + normalizedType))
	return hex.EncodeToString(sum[:])
}
