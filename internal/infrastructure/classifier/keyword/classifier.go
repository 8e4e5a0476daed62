package keyword

import (
	"context"
	"strconv"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	TypeGeneral = "general"
	TypeUnknown = "unknown"

	matchConfidence   = 0.8
	generalConfidence = 0.5
)

type category struct {
	documentType string
	keywords     []string
	weight       int
}

// categories are scored in order; the first of equal scores wins.
var categories = []category{
	{
		documentType: "technical_manual",
		weight:       2,
		keywords: []string{
			"sql", "query", "database", "select", "from where", "group by", "order by",
			"programming", "code", "syntax", "function", "variable", "api", "technical documentation",
		},
	},
	{
		documentType: "invoice",
		weight:       1,
		keywords: []string{
			"invoice", "bill", "payment", "amount due", "total due", "tax", "receipt",
			"purchase", "order", "price", "quantity", "subtotal",
		},
	},
	{
		documentType: "contract",
		weight:       1,
		keywords: []string{
			"contract", "agreement", "terms", "conditions", "parties", "signed", "binding",
			"clause", "hereby", "obligations",
		},
	},
	{
		documentType: "resume",
		weight:       1,
		keywords: []string{
			"resume", "cv", "curriculum vitae", "experience", "education", "skills", "job",
			"career", "employment", "reference", "qualification", "certification",
		},
	},
	{
		documentType: "report",
		weight:       1,
		keywords: []string{
			"report", "analysis", "summary", "findings", "conclusion", "results", "research",
			"data", "statistics", "quarterly", "annual",
		},
	},
	{
		documentType: "letter",
		weight:       1,
		keywords: []string{
			"letter", "dear", "sincerely", "regards", "attention", "thank you", "request",
			"inquiry", "responding",
		},
	},
	{
		documentType: "memo",
		weight:       1,
		keywords: []string{
			"memo", "memorandum", "internal", "office", "attention", "notification", "announcement",
		},
	},
	{
		documentType: "proposal",
		weight:       1,
		keywords: []string{
			"proposal", "project", "plan", "strategy", "initiative", "budget", "timeline",
			"objectives", "goals", "recommended",
		},
	},
	{
		documentType: "manual",
		weight:       1,
		keywords: []string{
			"manual", "guide", "instruction", "step", "procedure", "tutorial", "how to",
			"operation", "user guide",
		},
	},
	{
		documentType: "policy",
		weight:       1,
		keywords: []string{
			"policy", "guidelines", "compliance", "rules", "regulation", "procedure", "protocol",
			"standard operating procedure", "sop",
		},
	},
	{
		documentType: "financial",
		weight:       1,
		keywords: []string{
			"financial", "statement", "balance", "income", "revenue", "expense", "profit",
			"loss", "asset", "liability", "cash flow", "fiscal",
		},
	},
}

// Classifier scores text against weighted keyword tables. It never fails and
// needs no network, so it backs every remote classifier.
type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

func (c *Classifier) Classify(_ context.Context, text string) (domain.Classification, error) {
	return Classify(text), nil
}

// Classify is the pure form of Classifier.Classify.
func Classify(text string) domain.Classification {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return domain.Classification{
			DocumentType: TypeUnknown,
			Method:       domain.MethodKeyword,
			Reasoning:    "no text to classify",
		}
	}

	best, bestScore := "", 0
	for _, cat := range categories {
		if score := cat.score(lower); score > bestScore {
			best, bestScore = cat.documentType, score
		}
	}
	if best == "" {
		return domain.Classification{
			DocumentType: TypeGeneral,
			Confidence:   generalConfidence,
			Method:       domain.MethodKeyword,
			Reasoning:    "no category keywords matched",
		}
	}
	return domain.Classification{
		DocumentType: best,
		Confidence:   matchConfidence,
		Method:       domain.MethodKeyword,
		Reasoning:    "keyword score " + strconv.Itoa(bestScore),
	}
}

func (c category) score(lower string) int {
	matches := 0
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	return matches * c.weight
}
