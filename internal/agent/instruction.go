package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"sheetsight/internal/job"
)

// Instruction is the payload handed to the engine for one run.
type Instruction struct {
	SystemPrompt string `json:"system_prompt"`
	Prompt       string `json:"prompt"`
	SourceFile   string `json:"source_file"`
	WorkDir      string `json:"work_dir"`
}

// ArtifactName is the dashboard file the engine is asked to produce
// inside its working directory.
const ArtifactName = "dashboard.html"

const systemPrompt = `You are a data analyst. Explore the provided Excel workbook thoroughly
and produce a single interactive HTML dashboard.

Deliverable: a self-contained file named ` + ArtifactName + ` in the working
directory, containing interactive visualizations, descriptive statistics,
correlation and outlier analysis where the data supports them, and a short
executive summary of the key findings. Prefer depth over speed.`

// BuildInstruction composes the engine payload from the job's input
// and, for refinements, the prior run's context.
func BuildInstruction(rec *job.Record, workDir string) Instruction {
	input := rec.Input()

	var b strings.Builder
	fmt.Fprintf(&b, "Source workbook: %s\n", input.FilePath)
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "Write the dashboard to: %s\n\n", filepath.Join(workDir, ArtifactName))

	if ref := rec.Refinement(); ref != nil {
		b.WriteString("This is a refinement of an earlier analysis.\n")
		fmt.Fprintf(&b, "Previous dashboard: %s\n", ref.PriorResult)
		if ref.PriorInstructions != "" {
			fmt.Fprintf(&b, "Previous instructions: %s\n", ref.PriorInstructions)
		}
		b.WriteString("Start from the previous dashboard and apply the requested changes; keep what still holds.\n\n")
	}

	if input.Instructions != "" {
		fmt.Fprintf(&b, "User instructions: %s\n\n", input.Instructions)
	}

	b.WriteString("Analyze the workbook and build the dashboard now.")

	return Instruction{
		SystemPrompt: systemPrompt,
		Prompt:       b.String(),
		SourceFile:   input.FilePath,
		WorkDir:      workDir,
	}
}
