package provider

import (
	"fmt"
	"sync"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// estimateTextTokens is a CJK-aware character-count estimator, grounded on
// the teacher's llm/tokenizer/estimator.go: CJK runes cost ~1.5 chars/token,
// ASCII ~4 chars/token, used as the default fallback for adapters/models
// tiktoken does not cover.
func estimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	cjkTokens := float64(cjk) / 1.5
	asciiTokens := float64(total-cjk) / 4.0
	estimated := int(cjkTokens + asciiTokens)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}

// tiktokenEncodings maps OpenAI-family model IDs to their tiktoken
// encoding, grounded on the teacher's llm/tokenizer/tiktoken.go.
var tiktokenEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

var (
	tiktokenEnc = map[string]*tiktoken.Tiktoken{}
	tiktokenMu  sync.Mutex
)

// EstimateTokensExact returns an exact tiktoken-based count for OpenAI-
// family modelID, falling back to the CJK-aware estimator for any model
// tiktoken does not cover — that fallback is a conservative-upper-bound
// estimate, never exact ground truth for non-OpenAI providers, per spec
// §4.7. If the tiktoken encoding cannot be loaded, it returns an error.
func EstimateTokensExact(modelID, text string) (int, error) {
	encoding, ok := tiktokenEncodings[modelID]
	if !ok {
		return estimateTextTokens(text), nil
	}

	tiktokenMu.Lock()
	enc, cached := tiktokenEnc[encoding]
	tiktokenMu.Unlock()
	if !cached {
		e, err := tiktoken.GetEncoding(encoding)
		if err != nil {
			return 0, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
		}
		tiktokenMu.Lock()
		tiktokenEnc[encoding] = e
		tiktokenMu.Unlock()
		enc = e
	}
	return len(enc.Encode(text, nil, nil)), nil
}
