package ollama

func buildOutlinePrompt(text string) string {
	const maxSnippet = 12000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You are a document structure analyzer.
Return a strict JSON object describing the hierarchical outline of the document:
{
  "title": string,
  "confidence": number from 0 to 1,
  "sections": [
    {
      "label": string,
      "content": string (verbatim text of this section, empty if it only groups children),
      "confidence": number from 0 to 1,
      "children": [same shape, optional]
    }
  ]
}
Every piece of document text must appear in exactly one section's content.
No markdown, no extra keys.

Document:
` + snippet
}
