package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestTemplates creates a templates directory with an override for the
// release title and changes into it
func setupTestTemplates(t *testing.T) {
	tmpDir := t.TempDir()
	templatesDir := filepath.Join(tmpDir, "templates")
	if err := os.MkdirAll(templatesDir, 0755); err != nil {
		t.Fatalf("Failed to create templates directory: %v", err)
	}

	titleContent := `Release {{BUILD_NAME}}-{{RELEASE_NUMBER}}`
	if err := os.WriteFile(filepath.Join(templatesDir, "release-title.template"), []byte(titleContent), 0644); err != nil {
		t.Fatalf("Failed to create release-title.template: %v", err)
	}

	// Change to temp directory so relative paths work
	{
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Failed to get working directory: %v", err)
		}
		if err := os.Chdir(tmpDir); err != nil {
			t.Fatalf("Failed to change directory: %v", err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })
	}
}

func TestGetTemplate(t *testing.T) {
	setupTestTemplates(t)

	tests := []struct {
		name         string
		templateName string
		wantErr      bool
		contains     string
	}{
		{
			"file overrides builtin",
			ReleaseTitle,
			false,
			"Release {{BUILD_NAME}}",
		},
		{
			"builtin release notes",
			ReleaseNotes,
			false,
			"was promoted to {{TARGET_REPOSITORY}}",
		},
		{
			"unknown template",
			"invalid-template",
			true,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetTemplate(tt.templateName)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetTemplate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !strings.Contains(got, tt.contains) {
				t.Errorf("GetTemplate() should contain %q, got: %s", tt.contains, got)
			}
		})
	}
}

func TestRender(t *testing.T) {
	setupTestTemplates(t)

	tests := []struct {
		name         string
		templateName string
		data         TemplateData
		wantContains string
		wantErr      bool
	}{
		{
			"render overridden title",
			ReleaseTitle,
			TemplateData{"BUILD_NAME": "acme", "RELEASE_NUMBER": "7-r"},
			"Release acme-7-r",
			false,
		},
		{
			"render release notes",
			ReleaseNotes,
			TemplateData{
				"BUILD_NAME":        "acme",
				"BUILD_NUMBER":      "7",
				"RELEASE_NUMBER":    "7-r",
				"TARGET_REPOSITORY": "libs-release-local",
				"USER":              "alice",
				"ARTIFACTS":         "3",
				"ATTEMPT_ID":        "abc",
			},
			"Build acme #7 was promoted to libs-release-local as #7-r.",
			false,
		},
		{
			"unknown template",
			"invalid",
			TemplateData{},
			"",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.templateName, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Render() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !strings.Contains(got, tt.wantContains) {
				t.Errorf("Render() should contain %q, got: %s", tt.wantContains, got)
			}
		})
	}
}

func TestRenderString_LeavesUnknownPlaceholders(t *testing.T) {
	got := RenderString("{{A}} and {{B}}", TemplateData{"A": "{{B}}"})
	if got != "{{B}} and {{B}}" {
		t.Errorf("Expected substituted values not to be expanded again, got %q", got)
	}
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{ReleaseNotes, true},
		{ReleaseTitle, true},
		{"nginx-site", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateTemplate(tt.name); got != tt.want {
			t.Errorf("ValidateTemplate(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
