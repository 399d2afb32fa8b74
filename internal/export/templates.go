package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var policyTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"join": strings.Join,
	}

	templateContent, err := templateFS.ReadFile("templates/policy.html")
	if err != nil {
		// Fallback to built-in template if file not found
		policyTemplate = template.Must(template.New("policy").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	policyTemplate = template.Must(template.New("policy").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for policy template rendering
type TemplateData struct {
	ProjectName string
	Version     int
	Status      string
	CompiledBy  string
	CompiledAt  time.Time
	NodeCount   int
	EdgeCount   int
	Chains      []TemplateChain
	MaskRules   []TemplateMaskRule
}

// TemplateChain holds one approval chain for the template
type TemplateChain struct {
	WorkType   string
	Sequential bool
	Steps      []TemplateStep
}

// TemplateStep holds one approval step for the template
type TemplateStep struct {
	Order     int
	Approver  string
	Role      string
	PartyType string
	Required  bool
}

// TemplateMaskRule holds one field-masking rule for the template
type TemplateMaskRule struct {
	Contract   string
	Field      string
	MaskWith   string
	HiddenFrom []string
}

// RenderPolicyHTML renders the policy template with provided data
func RenderPolicyHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := policyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ProjectName}} approval policy</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
    .mask { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.ProjectName}}: Approval Policy v{{.Version}}</h1>
  <div class="meta">{{.Status}} | compiled by {{.CompiledBy}} on {{formatDate .CompiledAt "Jan 2, 2006"}} | {{.NodeCount}} nodes, {{.EdgeCount}} edges</div>
  {{range .Chains}}
  <h2>{{.WorkType}} approvals{{if .Sequential}} (sequential){{end}}</h2>
  <table>
    <tr><th>Step</th><th>Approver</th><th>Role</th><th>Party</th><th>Required</th></tr>
    {{range .Steps}}<tr><td>{{.Order}}</td><td>{{.Approver}}</td><td>{{.Role}}</td><td>{{lower .PartyType}}</td><td>{{if .Required}}yes{{else}}no{{end}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No approval chain is configured for this project.</p>
  {{end}}
  {{if .MaskRules}}
  <h2>Field visibility</h2>
  {{range .MaskRules}}<div class="mask">{{.Contract}}: {{.Field}} shown as {{.MaskWith}} to {{join .HiddenFrom ", "}}</div>
  {{end}}
  {{end}}
</body>
</html>`
