package gemini

import "strings"

const maxPromptSnippet = 3000

// categories maps the model's labels to routing document types.
var categories = []struct {
	label        string
	documentType string
	hint         string
}{
	{"Invoice", "invoice", "billing information, payment requests, amounts due, tax calculations or invoice numbers"},
	{"Purchase Order", "purchase_order", "requests for goods or services, procurement details, vendor information or purchase requests"},
	{"Report", "report", "analysis, findings, investigations, performance data, engineering or incident reports"},
	{"Policy / Circular", "policy", "company policies, procedures, guidelines, circulars or standard operating procedures"},
	{"Regulatory / Compliance", "regulatory", "regulatory information, compliance requirements, legal directives or audit findings"},
	{"Other", "general", "only if the document clearly fits none of the above"},
}

func buildClassificationPrompt(text string) string {
	snippet := text
	if len(snippet) > maxPromptSnippet {
		snippet = truncateUTF8(snippet, maxPromptSnippet)
	}

	var b strings.Builder
	b.WriteString("You are a document classifier for an operations back office.\n")
	b.WriteString("Classify the document into EXACTLY ONE of these categories:\n\n")
	for i, c := range categories {
		b.WriteString(string(rune('1' + i)))
		b.WriteString(". \"")
		b.WriteString(c.label)
		b.WriteString("\" - ")
		b.WriteString(c.hint)
		b.WriteString("\n")
	}
	b.WriteString("\nDocument text:\n")
	b.WriteString(snippet)
	b.WriteString(`

Choose the category matching the document's primary purpose.
Confidence should be 0.8 or higher for clear documents and 0.6-0.8 for ambiguous ones.
Respond with ONLY this JSON object:
{"predicted_type": "Exact Category Name", "confidence": 0.85, "reasoning": "short explanation"}
`)
	return b.String()
}

func documentTypeFor(label string) string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, c := range categories {
		if strings.ToLower(c.label) == normalized || c.documentType == normalized {
			return c.documentType
		}
	}
	return "general"
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
