package oracle

import (
	"fmt"
	"strings"

	"github.com/scoutalgo/clover/pkg/matching"
)

func systemPrompt(threshold int) string {
	return fmt.Sprintf(`You are an expert in matching FMCG grocery products sold by different retailers in Kazakhstan.
Decide whether exactly one of the candidates is the SAME product as the query.

Names may differ because of:
- different languages (Russian, Kazakh, English)
- transliterated brands (Coca-Cola = Кока-Кола, Sprite = Спрайт)
- abbreviated units (л = litre, мл = millilitre, г = gram)
- different word order

It is the same product when brand, package size (within 100 g/ml) and product type agree.
For brandless goods (vegetables, fruit, meat, eggs) ignore the brand and compare type and size.

It is NOT the same product when:
- the flavour differs (Fanta Orange is not Fanta Grape)
- the fat content differs (milk 2.5%% is not milk 3.2%%)
- one is a multipack and the other a single unit (2x500ml is not 500ml)
- one is a combo set and the other a single item

Answer with a JSON object only:
{"matched_id": "<candidate id or null>", "confidence": <0-100>, "verdict": "match" or "no_match", "rationale": "<short reason>"}
Use "match" only for confidence of %d or more, and pick the single best candidate.`, threshold)
}

func userPrompt(req matching.OracleRequest) string {
	var b strings.Builder
	q := req.Query
	b.WriteString("QUERY:\n")
	fmt.Fprintf(&b, "Name: %s\n", q.Name)
	if q.Brand != "" {
		fmt.Fprintf(&b, "Brand: %s\n", q.Brand)
	}
	if q.Quantity != "" {
		fmt.Fprintf(&b, "Size: %s\n", q.Quantity)
	} else {
		b.WriteString("Size: unknown\n")
	}
	if q.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", q.Category)
	}
	if q.Brandless {
		b.WriteString("Note: brandless product, compare type and size only\n")
	}

	b.WriteString("\nCANDIDATES:\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. [id: %s] %s", i+1, c.ID, c.Name)
		if c.Brand != "" {
			fmt.Fprintf(&b, " | brand: %s", c.Brand)
		}
		if c.Quantity != "" {
			fmt.Fprintf(&b, " | size: %s", c.Quantity)
		}
		fmt.Fprintf(&b, " | source: %s | local score: %d", c.Source, c.LocalScore)
		b.WriteString("\n")
	}
	return b.String()
}
