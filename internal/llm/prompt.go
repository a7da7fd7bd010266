package llm

import "strings"

// buildPrompt embeds the snippet verbatim in the fixed instruction
// template. The template asks for the four sections the UI renders.
func buildPrompt(snippet string) string {
	var b strings.Builder
	b.WriteString("Please analyze and explain the following code:\n\n")
	b.WriteString("```\n")
	b.WriteString(snippet)
	b.WriteString("\n```\n\n")
	b.WriteString("Provide a clear explanation of what the code does, its structure,\n")
	b.WriteString("and any notable patterns or potential issues. Include:\n\n")
	b.WriteString("1. Overall purpose of the code\n")
	b.WriteString("2. Breakdown of key functions/components\n")
	b.WriteString("3. Potential bugs or edge cases\n")
	b.WriteString("4. Performance considerations\n")
	return b.String()
}
