// Package prompts holds the role instructions used by the generation service.
//
// Instructions are configuration data: they are parsed once from YAML into
// templates and cannot be changed afterwards. Call sites only pick a role
// and supply the task data.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Role names an agent instruction set
type Role string

const (
	RoleSafety    Role = "safety"
	RoleRetrieval Role = "retrieval"
	RoleMaker     Role = "maker"
	RoleChecker   Role = "checker"
	RoleFilter    Role = "filter"
)

// RequiredRoles lists the roles every catalog must define
var RequiredRoles = []Role{RoleSafety, RoleRetrieval, RoleMaker, RoleChecker, RoleFilter}

// Data is the task-specific input rendered into a role's templates
type Data struct {
	Query       string
	Context     string
	MakerOutput string
	Text        string
	DocumentIDs []string
}

// Prompt is a rendered request: an optional system instruction plus content
type Prompt struct {
	System  string
	Content string
}

type roleFile struct {
	IncludeMeta bool   `yaml:"include_meta"`
	System      string `yaml:"system"`
	Content     string `yaml:"content"`
}

type catalogFile struct {
	Meta  string            `yaml:"meta"`
	Roles map[Role]roleFile `yaml:"roles"`
}

type roleTemplates struct {
	includeMeta bool
	system      *template.Template
	content     *template.Template
}

// Catalog maps roles to their parsed instruction templates
type Catalog struct {
	meta  string
	roles map[Role]roleTemplates
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Load parses a catalog from YAML and checks that every required role exists
func Load(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}

	c := &Catalog{
		meta:  strings.TrimSpace(f.Meta),
		roles: make(map[Role]roleTemplates, len(f.Roles)),
	}

	for role, rf := range f.Roles {
		if strings.TrimSpace(rf.Content) == "" {
			return nil, fmt.Errorf("role %s: content template is empty", role)
		}
		content, err := template.New(string(role) + ".content").Funcs(funcs).Option("missingkey=error").Parse(rf.Content)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		system, err := template.New(string(role) + ".system").Funcs(funcs).Option("missingkey=error").Parse(rf.System)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		c.roles[role] = roleTemplates{
			includeMeta: rf.IncludeMeta,
			system:      system,
			content:     content,
		}
	}

	for _, role := range RequiredRoles {
		if _, ok := c.roles[role]; !ok {
			return nil, fmt.Errorf("prompt catalog is missing role %q", role)
		}
	}

	return c, nil
}

// NewDefaultCatalog returns the built-in instructions
func NewDefaultCatalog() (*Catalog, error) {
	return Load(defaultCatalog)
}

// Meta returns the meta system prompt shared by the maker and checker roles
func (c *Catalog) Meta() string {
	return c.meta
}

// Render builds the prompt for role from data
func (c *Catalog) Render(role Role, data Data) (Prompt, error) {
	rt, ok := c.roles[role]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt role %q", role)
	}

	var buf bytes.Buffer
	if err := rt.content.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s content: %w", role, err)
	}
	content := buf.String()

	buf.Reset()
	if err := rt.system.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s system: %w", role, err)
	}
	system := strings.TrimSpace(buf.String())

	if rt.includeMeta && c.meta != "" {
		if system == "" {
			system = c.meta
		} else {
			system = c.meta + "\n\n" + system
		}
	}

	return Prompt{System: system, Content: content}, nil
}
