package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type Department struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Email         string   `yaml:"email"`
	DocumentTypes []string `yaml:"document_types"`
}

type Config struct {
	ConfidenceThreshold float64                    `yaml:"confidence_threshold"`
	FallbackDepartment  string                     `yaml:"fallback_department"`
	DefaultPriority     domain.Priority            `yaml:"default_priority"`
	Priorities          map[string]domain.Priority `yaml:"priorities"`
	UrgentKeywords      []string                   `yaml:"urgent_keywords"`
	SensitiveKeywords   []string                   `yaml:"sensitive_keywords"`
	Departments         []Department               `yaml:"departments"`
}

// DefaultConfig is used when no rules file is configured.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		FallbackDepartment:  "general_office",
		DefaultPriority:     domain.PriorityLow,
		Priorities: map[string]domain.Priority{
			"invoice":        domain.PriorityHigh,
			"contract":       domain.PriorityHigh,
			"regulatory":     domain.PriorityHigh,
			"purchase_order": domain.PriorityMedium,
			"financial":      domain.PriorityMedium,
			"resume":         domain.PriorityMedium,
			"policy":         domain.PriorityMedium,
		},
		UrgentKeywords:    []string{"urgent", "asap", "immediate", "priority", "deadline"},
		SensitiveKeywords: []string{"confidential", "private", "restricted", "classified"},
		Departments: []Department{
			{ID: "finance", Name: "Finance", Email: "finance@company.com", DocumentTypes: []string{"invoice", "financial"}},
			{ID: "legal", Name: "Legal", Email: "legal@company.com", DocumentTypes: []string{"contract", "policy", "regulatory"}},
			{ID: "hr", Name: "HR", Email: "hr@company.com", DocumentTypes: []string{"resume"}},
			{ID: "administration", Name: "Administration", Email: "admin@company.com", DocumentTypes: []string{"letter", "memo"}},
			{ID: "analytics", Name: "Analytics", Email: "analytics@company.com", DocumentTypes: []string{"report"}},
			{ID: "business_development", Name: "Business Development", Email: "bizdev@company.com", DocumentTypes: []string{"proposal"}},
			{ID: "technical_documentation", Name: "Technical Documentation", Email: "docs@company.com", DocumentTypes: []string{"manual"}},
			{ID: "it", Name: "IT", Email: "it@company.com", DocumentTypes: []string{"technical_manual"}},
			{ID: "operations", Name: "Operations", Email: "operations@company.com", DocumentTypes: []string{"purchase_order"}},
			{ID: "general_office", Name: "General Office", Email: "office@company.com", DocumentTypes: []string{"general"}},
		},
	}
}

// Router assigns departments from classification results.
type Router struct {
	cfg         Config
	departments map[string]Department
	byType      map[string]string
}

// Load reads a YAML rules file. An empty path yields the built-in rules.
func Load(path string) (*Router, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return New(DefaultConfig())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing rules file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Router, error) {
	cfg := Config{ConfidenceThreshold: -1}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse routing rules file: %w", err)
	}
	defaults := DefaultConfig()
	if cfg.ConfidenceThreshold < 0 {
		cfg.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if len(cfg.Departments) == 0 {
		cfg.Departments = defaults.Departments
		if cfg.FallbackDepartment == "" {
			cfg.FallbackDepartment = defaults.FallbackDepartment
		}
	}
	if cfg.DefaultPriority == "" {
		cfg.DefaultPriority = defaults.DefaultPriority
	}
	if cfg.UrgentKeywords == nil {
		cfg.UrgentKeywords = defaults.UrgentKeywords
	}
	if cfg.SensitiveKeywords == nil {
		cfg.SensitiveKeywords = defaults.SensitiveKeywords
	}
	return New(cfg)
}

func New(cfg Config) (*Router, error) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "routing rules",
			fmt.Errorf("confidence_threshold %v outside [0,1]", cfg.ConfidenceThreshold))
	}

	r := &Router{
		cfg:         cfg,
		departments: make(map[string]Department, len(cfg.Departments)),
		byType:      make(map[string]string),
	}
	for _, dept := range cfg.Departments {
		id := strings.TrimSpace(dept.ID)
		if id == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "routing rules", fmt.Errorf("department without id"))
		}
		if _, dup := r.departments[id]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "routing rules", fmt.Errorf("duplicate department %q", id))
		}
		if dept.Name == "" {
			dept.Name = id
		}
		dept.ID = id
		r.departments[id] = dept
		for _, docType := range dept.DocumentTypes {
			docType = normalizeType(docType)
			if owner, taken := r.byType[docType]; taken {
				return nil, domain.WrapError(domain.ErrInvalidInput, "routing rules",
					fmt.Errorf("document type %q routed to both %q and %q", docType, owner, id))
			}
			r.byType[docType] = id
		}
	}
	if _, ok := r.departments[cfg.FallbackDepartment]; !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "routing rules",
			fmt.Errorf("fallback department %q is not defined", cfg.FallbackDepartment))
	}
	r.cfg.UrgentKeywords = lowerAll(cfg.UrgentKeywords)
	r.cfg.SensitiveKeywords = lowerAll(cfg.SensitiveKeywords)
	return r, nil
}

// Route picks a department for a classified document. Classifications under
// the confidence threshold go to the fallback department flagged for review.
func (r *Router) Route(_ *domain.Document, text string, cls domain.Classification) domain.Routing {
	lower := strings.ToLower(text)
	docType := normalizeType(cls.DocumentType)

	if cls.Confidence < r.cfg.ConfidenceThreshold {
		routing := r.routingFor(r.cfg.FallbackDepartment)
		routing.Priority = domain.PriorityMedium
		routing.NeedsReview = true
		routing.Sensitive = containsAny(lower, r.cfg.SensitiveKeywords)
		routing.Reason = fmt.Sprintf("Low confidence classification (%.2f < %.2f)", cls.Confidence, r.cfg.ConfidenceThreshold)
		return routing
	}

	deptID, ok := r.byType[docType]
	if !ok {
		deptID = r.cfg.FallbackDepartment
	}
	routing := r.routingFor(deptID)
	routing.Priority = r.priorityFor(docType, lower)
	routing.Sensitive = containsAny(lower, r.cfg.SensitiveKeywords)
	routing.Reason = "Classified as " + docType
	return routing
}

func (r *Router) routingFor(deptID string) domain.Routing {
	dept := r.departments[deptID]
	return domain.Routing{
		DepartmentID: dept.ID,
		Department:   dept.Name,
		Email:        dept.Email,
	}
}

func (r *Router) priorityFor(docType, lower string) domain.Priority {
	if containsAny(lower, r.cfg.UrgentKeywords) {
		return domain.PriorityHigh
	}
	if p, ok := r.cfg.Priorities[docType]; ok {
		return p
	}
	return r.cfg.DefaultPriority
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func normalizeType(docType string) string {
	return strings.ToLower(strings.TrimSpace(docType))
}
