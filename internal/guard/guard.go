// Package guard is a local, regex-based pre-screen for user queries. It
// catches obvious prompt-injection and personal-data patterns before the
// query reaches the hosted safety audit.
package guard

import (
	"regexp"
	"sort"

	"github.com/upb/agentic-rag/models"
)

// Category names a family of suspicious patterns.
type Category string

const (
	CategoryPromptLeak          Category = "system_prompt_leak"
	CategoryRoleManipulation    Category = "role_manipulation"
	CategoryInstructionOverride Category = "instruction_override"
	CategoryCodeExecution       Category = "code_execution"
	CategoryJailbreak           Category = "jailbreak"
	CategoryDelimiterAttack     Category = "delimiter_attack"
	CategoryEncodedPayload      Category = "encoded_payload"

	CategoryEmail      Category = "pii_email"
	CategorySSN        Category = "pii_ssn"
	CategoryCreditCard Category = "pii_credit_card"
	CategorySecret     Category = "credential_leak"
)

// BlockThreshold is the minimum confidence that rejects a query.
const BlockThreshold = 0.8

// Finding is one pattern match in the screened text.
type Finding struct {
	Category   Category
	Confidence float64
	Start      int
	End        int
}

type rule struct {
	category   Category
	confidence float64
	patterns   []*regexp.Regexp
}

var injectionRules = []rule{
	{CategoryPromptLeak, 0.9, compile(
		`(?i)ignore\s+(previous|all|above|prior)\s+(instructions?|prompts?|commands?)`,
		`(?i)(show|reveal|print|repeat)\s+(me\s+)?(your|the)\s+(system|original|initial|hidden|secret)\s+(prompt|instructions?)`,
		`(?i)what\s+(is|are|was|were)\s+(your|the)\s+(system|original|initial)\s+(prompt|instructions?)`,
	)},
	{CategoryRoleManipulation, 0.85, compile(
		`(?i)(you|your)\s+(are|role|identity)\s+(now|is|changed)`,
		`(?i)assume\s+(the\s+)?(role|identity)\s+of`,
		`(?i)pretend\s+(to\s+)?be\s+(a|an)`,
		`(?i)from\s+now\s+on[,]?\s+(you|your)\s+(are|will)`,
	)},
	{CategoryInstructionOverride, 0.9, compile(
		`(?i)disregard\s+(all|previous|above|any)\s+(instructions?|rules|commands?)`,
		`(?i)override\s+(all|previous|system)\s+(instructions?|rules|settings?)`,
		`(?i)forget\s+(everything|all\s+previous|what\s+you\s+learned)`,
	)},
	{CategoryCodeExecution, 0.95, compile(
		`(?i)(execute|run)\s+(this|the\s+following)\s+(code|script|command)`,
		`(?i)\b(eval|exec|system)\s*\(`,
		`(?i)import\s+(os|sys|subprocess|socket)\b`,
		`(?i)send\s+(data|information|content)\s+to\s+https?://`,
	)},
	{CategoryJailbreak, 0.95, compile(
		`(?i)\bDAN\s+mode`,
		`(?i)developer\s+mode`,
		`(?i)jailbreak`,
		`(?i)(unrestricted|god)\s+mode`,
		`(?i)without\s+(any|ethical|moral)\s+(restrictions?|limitations?|guidelines?)`,
	)},
	{CategoryDelimiterAttack, 0.8, compile(
		`\[/?(SYSTEM|USER|ASSISTANT)\]`,
		`<\|(system|user|assistant|end)\|>`,
		`###\s*(SYSTEM|USER|ASSISTANT|INSTRUCTION)`,
	)},
	{CategoryEncodedPayload, 0.7, compile(
		`(?i)base64\s*[:\s=]\s*[A-Za-z0-9+/]{20,}={0,2}`,
		`(?:\\x[0-9a-fA-F]{2}){10,}`,
	)},
}

var piiRules = []rule{
	{CategoryEmail, 0.6, compile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{CategorySSN, 0.75, compile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)},
	{CategoryCreditCard, 0.75, compile(
		`\b4[0-9]{12}(?:[0-9]{3})?\b`,
		`\b5[1-5][0-9]{14}\b`,
		`\b3[47][0-9]{13}\b`,
	)},
	// credentials must never reach the hosted model
	{CategorySecret, 0.9, compile(
		`-----BEGIN\s+(?:RSA\s+|EC\s+|DSA\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`,
		`\bAKIA[0-9A-Z]{16}\b`,
		`\bAIza[0-9A-Za-z\-_]{35}\b`,
		`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`,
		`\bgh[pousr]_[A-Za-z0-9]{36,}\b`,
		`\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`,
		`(?i)\b(api[_\-]?key|access[_\-]?token|password)\s*[:=]\s*['"]?[^\s'"]{12,}`,
	)},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Guard screens text against the built-in rule set.
type Guard struct {
	rules []rule
}

// New returns a guard with injection rules, plus personal-data and
// credential rules when withPII is set.
func New(withPII bool) *Guard {
	rules := append([]rule{}, injectionRules...)
	if withPII {
		rules = append(rules, piiRules...)
	}
	return &Guard{rules: rules}
}

// Scan returns every finding ordered by position.
func (g *Guard) Scan(text string) []Finding {
	var findings []Finding
	for _, r := range g.rules {
		for _, p := range r.patterns {
			for _, m := range p.FindAllStringIndex(text, -1) {
				findings = append(findings, Finding{
					Category:   r.category,
					Confidence: r.confidence,
					Start:      m[0],
					End:        m[1],
				})
			}
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Start < findings[j].Start
	})
	return findings
}

// Screen condenses a scan into a safety report. A query is rejected when
// any finding reaches BlockThreshold.
func (g *Guard) Screen(text string) models.SafetyReport {
	return Report(g.Scan(text), 0)
}

// Report condenses findings at or above minConfidence into a safety report.
// Findings at BlockThreshold fail the report with high severity, weaker ones
// raise it to medium.
func Report(findings []Finding, minConfidence float64) models.SafetyReport {
	report := models.SafetyReport{
		Passed:     true,
		Violations: []string{},
		Severity:   models.SeverityLow,
	}

	seen := make(map[Category]bool)
	for _, f := range findings {
		if f.Confidence < minConfidence {
			continue
		}
		if !seen[f.Category] {
			seen[f.Category] = true
			report.Violations = append(report.Violations, string(f.Category))
		}
		switch {
		case f.Confidence >= BlockThreshold:
			report.Passed = false
			report.Severity = models.SeverityHigh
		case report.Severity == models.SeverityLow:
			report.Severity = models.SeverityMedium
		}
	}
	return report
}

// Merge folds a local screen into a report from the hosted audit. The
// stricter verdict and the higher severity win; violations are unioned.
func Merge(remote, local models.SafetyReport) models.SafetyReport {
	out := models.SafetyReport{
		Passed:     remote.Passed && local.Passed,
		Violations: append([]string{}, remote.Violations...),
		Severity:   remote.Severity,
	}
	if severityRank(local.Severity) > severityRank(out.Severity) {
		out.Severity = local.Severity
	}

	seen := make(map[string]bool, len(out.Violations))
	for _, v := range out.Violations {
		seen[v] = true
	}
	for _, v := range local.Violations {
		if !seen[v] {
			seen[v] = true
			out.Violations = append(out.Violations, v)
		}
	}
	return out
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}
