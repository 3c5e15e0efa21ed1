package generation

import (
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services/providers"
)

var safetySchema = &providers.Schema{
	Name: "safety_report",
	Type: providers.TypeObject,
	Properties: map[string]*providers.Schema{
		"passed": {Type: providers.TypeBoolean},
		"violations": {
			Type:  providers.TypeArray,
			Items: &providers.Schema{Type: providers.TypeString},
		},
		"severity": {
			Type: providers.TypeString,
			Enum: []string{
				string(models.SeverityLow),
				string(models.SeverityMedium),
				string(models.SeverityHigh),
			},
		},
	},
	Required: []string{"passed", "violations", "severity"},
}

var auditSchema = &providers.Schema{
	Name: "audit_result",
	Type: providers.TypeObject,
	Properties: map[string]*providers.Schema{
		"isGood":   {Type: providers.TypeBoolean},
		"feedback": {Type: providers.TypeString},
	},
	Required: []string{"isGood", "feedback"},
}
