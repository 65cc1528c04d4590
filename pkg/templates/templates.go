package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Template names
const (
	ReleaseTitle = "release-title"
	ReleaseNotes = "release-notes"
)

// builtin templates are used when no file overrides them
var builtin = map[string]string{
	ReleaseTitle: `{{BUILD_NAME}} {{RELEASE_NUMBER}}`,
	ReleaseNotes: `Build {{BUILD_NAME}} #{{BUILD_NUMBER}} was promoted to {{TARGET_REPOSITORY}} as #{{RELEASE_NUMBER}}.

Promoted by: {{USER}}
Artifacts: {{ARTIFACTS}}
Attempt: {{ATTEMPT_ID}}
`,
}

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the search paths for templates
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "promoter", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// Templates are loaded from the filesystem in the following order,
// falling back to the built-in content:
// 1. ./templates/<name>.template
// 2. ./config/templates/<name>.template
// 3. /etc/promoter/templates/<name>.template
func GetTemplate(name string) (string, error) {
	// Validate template name
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}

	return builtin[name], nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution.
//
// Example:
//
//	data := TemplateData{
//	    "BUILD_NAME":     "acme",
//	    "RELEASE_NUMBER": "7-r",
//	}
//	rendered, err := Render(ReleaseTitle, data)
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}
	return RenderString(tmplContent, data), nil
}

// RenderString replaces {{KEY}} placeholders in content
func RenderString(content string, data TemplateData) string {
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, fmt.Sprintf("{{%s}}", key), value)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	_, ok := builtin[name]
	return ok
}
