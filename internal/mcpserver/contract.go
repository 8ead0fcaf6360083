package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/permitflow/internal/models"
)

// StepTemplateURI identifies the step template resource.
const StepTemplateURI = "permitflow://step-template"

// StepTemplateMarkdown renders the canonical workflow as a Markdown table.
func StepTemplateMarkdown() string {
	var b strings.Builder
	b.WriteString("# Quarry Permit Workflow\n\n")
	b.WriteString("Every application has these steps. Each step is ")
	fmt.Fprintf(&b, "%q, %q or %q; any transition is allowed.\n\n",
		models.StatusNotStarted, models.StatusInProgress, models.StatusCompleted)
	b.WriteString("| Step | Title |\n|---|---|\n")
	for _, t := range models.Template {
		fmt.Fprintf(&b, "| %d | %s |\n", t.StepNumber, t.StepTitle)
	}
	return b.String()
}
