// Package normalize turns free text into one clean query per item
// mentioned, using a single language model call.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/llm"
)

const promptTemplate = `You are given text that may contain multiple sentences or paragraphs listing items.
The items may be separated by commas, the word "and", or mixed punctuation, and may
appear anywhere in the paragraph.

Input variable:
%s

Your task is to:
- Extract all distinct item names from the text, including product names with serial numbers and model names
- Remove connector words like "and", "or", etc.
- Ignore sentence structure and extra words
- Fix obvious spelling mistakes
- Preserve complete product identifiers (model numbers, serial numbers, product codes)

Output rules:
- Output ONLY the cleaned item names
- One item per line
- No numbering
- No bullets
- No explanations
- Keep model numbers and serial numbers attached to their product names
- Do NOT add extra words
- Do NOT merge unrelated items
- Do NOT output JSON

Example:

Input:
We need Intel Core i7-13700K processor, ASUS ROG Strix Z790 motherboard and Corsair Vengeance DDR5 32GB RAM for the build. Also add a Samsung 980 PRO 1TB SSD and NVIDIA GeForce RTX 4080, along with Cooler Master MasterLiquid 240mm AIO cooler and Seasonic Focus GX-850 power suply for testing.

Expected output:
Intel Core i7-13700K processor
ASUS ROG Strix Z790 motherboard
Corsair Vengeance DDR5 32GB RAM
Samsung 980 PRO 1TB SSD
NVIDIA GeForce RTX 4080
Cooler Master MasterLiquid 240mm AIO cooler
Seasonic Focus GX-850 power supply`

// BuildPrompt renders the normalization instruction for raw.
func BuildPrompt(raw string) string {
	return fmt.Sprintf(promptTemplate, raw)
}

// Normalizer extracts item queries from raw text.
type Normalizer struct {
	model  llm.LanguageModel
	logger *slog.Logger
}

// New creates a Normalizer backed by model.
func New(model llm.LanguageModel) (*Normalizer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: language model is required", cmerrors.ErrNilDependency)
	}
	return &Normalizer{
		model:  model,
		logger: slog.Default().With("component", "normalize"),
	}, nil
}

// Normalize returns the item queries in the order the model listed them.
// Duplicates are kept. Empty input, a failed call or a response with no
// usable line is a NormalizationFailure.
func (n *Normalizer) Normalize(ctx context.Context, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, cmerrors.NormalizationFailure("input text is empty", nil)
	}

	resp, err := n.model.Complete(llm.WithPurpose(ctx, llm.PurposeNormalize), BuildPrompt(raw))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cmerrors.NormalizationFailure("normalization model call failed", err)
	}

	queries := ParseLines(resp)
	if len(queries) == 0 {
		return nil, cmerrors.NormalizationFailure("normalization returned no items", nil).
			WithDetail("response_chars", fmt.Sprint(len(resp)))
	}

	n.logger.Info("input_normalized", slog.Int("queries", len(queries)))
	return queries, nil
}

// ParseLines splits a model response into cleaned, non-empty lines.
func ParseLines(resp string) []string {
	lines := strings.Split(strings.ReplaceAll(resp, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if q := Clean(line); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Clean drops control and format characters, collapses runs of whitespace
// and trims. Every other rune is kept as the model returned it.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
