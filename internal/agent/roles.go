package agent

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"text/template"

	"go.yaml.in/yaml/v3"
)

// Role names an agent persona.
type Role string

const (
	RolePathseeker   Role = "pathseeker"
	RoleCodeweaver   Role = "codeweaver"
	RoleSiegemaster  Role = "siegemaster"
	RoleLawbringer   Role = "lawbringer"
	RoleSpiritmender Role = "spiritmender"
)

// Valid returns true if the role has a prompt in the catalogue.
func (r Role) Valid() bool {
	_, err := lookupRole(r)
	return err == nil
}

//go:embed roles.yaml
var rolesYAML []byte

// roleSpec is one entry of roles.yaml.
type roleSpec struct {
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed_tools"`
	Prompt       string   `yaml:"prompt"`
}

type roleCatalogue struct {
	Roles map[Role]roleSpec `yaml:"roles"`
}

var (
	catalogueOnce sync.Once
	catalogue     map[Role]*compiledRole
	catalogueErr  error
)

type compiledRole struct {
	spec roleSpec
	tmpl *template.Template
}

func loadCatalogue() {
	var c roleCatalogue
	if err := yaml.Unmarshal(rolesYAML, &c); err != nil {
		catalogueErr = fmt.Errorf("parse roles: %w", err)
		return
	}
	catalogue = make(map[Role]*compiledRole, len(c.Roles))
	for name, spec := range c.Roles {
		tmpl, err := template.New(string(name)).Option("missingkey=error").Parse(spec.Prompt)
		if err != nil {
			catalogueErr = fmt.Errorf("parse %s prompt: %w", name, err)
			return
		}
		catalogue[name] = &compiledRole{spec: spec, tmpl: tmpl}
	}
}

func lookupRole(r Role) (*compiledRole, error) {
	catalogueOnce.Do(loadCatalogue)
	if catalogueErr != nil {
		return nil, catalogueErr
	}
	c, ok := catalogue[r]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", r)
	}
	return c, nil
}

// Roles lists the catalogue roles in name order.
func Roles() []Role {
	catalogueOnce.Do(loadCatalogue)
	roles := make([]Role, 0, len(catalogue))
	for r := range catalogue {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// PromptData fills a role prompt. Fields a role does not use are ignored.
type PromptData struct {
	QuestID           string
	QuestPath         string
	UserRequest       string
	StepID            string
	StepName          string
	StepDescription   string
	Files             []string
	ContinuationPoint string
	ObservableID      string
	Observable        string
	WardOutput        string
}

// RenderPrompt renders the prompt for role.
func RenderPrompt(role Role, data PromptData) (string, error) {
	c, err := lookupRole(role)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", role, err)
	}
	return buf.String(), nil
}

// Options returns spawn options for role with its rendered prompt and
// allowed tools.
func Options(role Role, workDir string, data PromptData) (SpawnOptions, error) {
	prompt, err := RenderPrompt(role, data)
	if err != nil {
		return SpawnOptions{}, err
	}
	c, _ := lookupRole(role)
	return SpawnOptions{
		Role:         role,
		Prompt:       prompt,
		WorkDir:      workDir,
		AllowedTools: append([]string(nil), c.spec.AllowedTools...),
	}, nil
}
