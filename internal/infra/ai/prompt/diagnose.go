package prompt

import "fmt"

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior CI/CD engineer. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- likely_cause must be a short, single-sentence statement.
- failing_stage is the pipeline stage name most likely responsible, or "" when unclear.
- suggested_fixes is an array of concise, actionable items ordered by likelihood.
- If the actual file content is not provided in the prompt, infer likely failure modes from the file type and URL safely and conservatively.

Schema (example with empty values):
{
  "file_url": "<string>",
  "failing_stage": "<string>",
  "likely_cause": "<string>",
  "suggested_fixes": ["<string>"],
  "advice": "<string>"
}`
}

// GetUserPrompt builds a compact user message around a file URL.
func GetUserPrompt(fileURL string) string {
	return fmt.Sprintf("Diagnose the pipeline failure using the log or report at this URL and respond with the JSON per schema. URL: %s", fileURL)
}
