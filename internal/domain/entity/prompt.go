package entity

import "strings"

type Prompt struct {
	ID     string
	System string
	Text   string
}

// Render substitutes {{code}} and {{error}} in the prompt text.
func (p Prompt) Render(in TaskInput) string {
	return strings.NewReplacer(
		"{{code}}", in.Code,
		"{{error}}", in.ErrorMessage,
	).Replace(p.Text)
}

const explainPrompt = `Explain the following code step-by-step in a very beginner-friendly way:
1. What each part of the code does
2. How the different parts work together
3. Any potential improvements or best practices to consider

Code:
{{code}}`

const explainErrorPrompt = `Explain the following error in the code step-by-step in a very beginner-friendly way:
1. What caused the error
2. How to fix it
3. Provide a simple explanation of the concept that's related to this error

Code/Error:
{{code}}`

const fixSystemPrompt = "You are a security and code quality expert. Detect vulnerabilities and bugs in the code. " +
	"Return ONLY the fixed, secure code with brief comments explaining the changes."

const fixPrompt = "Fix this code and add helpful comments to explain your changes:\n\n{{code}}"

const diagramPrompt = `Generate a clear, beginner-friendly code flow diagram for the following code.

Use Mermaid.js flowchart syntax with the following guidelines:
1. Use a top-down (TD) layout for better readability
2. Use simple boxes for functions and processes
3. Use diamond shapes for decision points
4. Use rounded boxes for start/end points
5. Use clear, concise labels (maximum 5-7 words per node)
6. Group related operations where possible
7. Limit diagram complexity (max 10-15 nodes)
8. Include clear arrows with short descriptions
9. Add colors to distinguish different types of operations (e.g., blue for input, green for processing, yellow for decisions)

The diagram should explain the code to absolute beginners. Focus on the main flow and purpose rather than every single line.
Return the diagram inside a single ` + "```mermaid" + ` code fence.

Code:
{{code}}`

const debugPrompt = "You are an expert debugging assistant.\n\n" +
	"CODE:\n```\n{{code}}\n```\n\n" +
	"ERROR:\n```\n{{error}}\n```\n\n" +
	`Provide a detailed debugging analysis:
1. Identify the exact line and cause of the error
2. Explain why this error occurs in simple terms
3. Provide a specific fix for the error
4. Show the corrected code
5. Explain how to prevent similar errors in the future

Format your response in clear markdown with code examples.`

// NoIssuesSentinel is the phrase the scan prompt asks for when nothing is found.
const NoIssuesSentinel = "NO SECURITY ISSUES DETECTED"

const scanPrompt = `Analyze the following code for security vulnerabilities and potential issues.
Respond with a single JSON object and nothing else, using exactly this schema:
{
  "status": "issues_found",
  "summary": "overall code quality assessment and suggestions for improvement",
  "issues": [
    {
      "type": "vulnerability class, e.g. injection, insecure function",
      "severity": "high | medium | low",
      "description": "what is wrong and why it matters",
      "fix": "specific recommendation for fixing it",
      "line": 0
    }
  ]
}
If the code has no security issues, reply with exactly: ` + NoIssuesSentinel + `

Code:
` + "```\n{{code}}\n```"

var (
	ExplainPrompt      = Prompt{ID: "explain", Text: explainPrompt}
	ExplainErrorPrompt = Prompt{ID: "explain_error", Text: explainErrorPrompt}
	FixPrompt          = Prompt{ID: "fix", System: fixSystemPrompt, Text: fixPrompt}
	DiagramPrompt      = Prompt{ID: "diagram", Text: diagramPrompt}
	DebugPrompt        = Prompt{ID: "debug", Text: debugPrompt}
	ScanPrompt         = Prompt{ID: "scan", Text: scanPrompt}
)

// FallbackDiagram is shown when no diagram could be extracted.
const FallbackDiagram = `graph TD
    A[Start Program] --> B[Initialize Variables]
    B --> C[Process Input]
    C --> D{Check Conditions}
    D -->|Condition Met| E[Execute Main Logic]
    D -->|Condition Not Met| F[Handle Exception]
    E --> G[Generate Output]
    F --> G
    G --> H[End Program]

    style A fill:#d0f0c0,stroke:#333,stroke-width:2px
    style D fill:#fffacd,stroke:#333,stroke-width:2px
    style H fill:#d0f0c0,stroke:#333,stroke-width:2px
    style E fill:#b0e0e6,stroke:#333,stroke-width:2px
    style F fill:#ffb6c1,stroke:#333,stroke-width:2px`
