package selection

import (
	"fmt"
	"strconv"
	"strings"
)

const promptHeader = `You are a product catalog matching assistant.

Task:
- For EACH query below, select the SINGLE best matching product
- Use ONLY the retrieved candidates listed under that query
- Do NOT invent products
- If no candidate is suitable, return nulls`

const promptFooter = `Return STRICT JSON ONLY in the following format:

[
  {
    "input_query": "<query text>",
    "selected_product_id": "<string or null>",
    "selected_product_name": "<string or null>",
    "confidence": "high | medium | low",
    "reason": "<short explanation>"
  }
]

Rules:
- Output MUST be valid JSON
- Output MUST be a JSON array
- Return exactly %d objects, one per query, in the same order as the queries
- selected_product_id and selected_product_name are both null or both set
- No markdown
- No extra text`

// BuildPrompt renders the selection prompt for batch.
func BuildPrompt(batch []BatchItem) string {
	blocks := make([]string, 0, len(batch))
	for i, item := range batch {
		blocks = append(blocks, queryBlock(i+1, item))
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, promptFooter, len(batch))
	return b.String()
}

func queryBlock(n int, item BatchItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query %d:\nUser Query:\n%q\n\nRetrieved Candidates:\n", n, item.Query)

	if len(item.Candidates) == 0 {
		b.WriteString("(none)")
		return b.String()
	}

	for i, c := range item.Candidates {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Candidate %d:\n", i+1)
		fmt.Fprintf(&b, "- Product ID: %s\n", c.ProductID)
		fmt.Fprintf(&b, "- Product Name: %s\n", c.ProductName)
		fmt.Fprintf(&b, "- Category: %s\n", c.Category)
		fmt.Fprintf(&b, "- Distance Score: %s\n", formatScore(c.Distance))
		fmt.Fprintf(&b, "- Hybrid Score: %s\n", formatScore(c.HybridScore))
		fmt.Fprintf(&b, "- Description: %s", c.Description)
	}
	return b.String()
}

func formatScore(x float64) string {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
