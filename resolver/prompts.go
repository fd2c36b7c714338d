package resolver

import "fmt"

const extractSystemPrompt = "You are an information extraction algorithm. You answer by calling the provided function with JSON arguments."

func extractUserPrompt(text string) string {
	return fmt.Sprintf(`Extract the chemical substance and its emission or resource category from the text in the angle brackets below and pass them to %s with the keys "name" and "category".
The name must be the plain English substance name with no surrounding description.
Leave the category empty unless the text names one of the allowed categories.
Use "None" as the name if the text mentions no substance.
<%s>`, ParseQueryTool, text)
}

const synonymsSystemPrompt = "You are a helpful assistant for chemical nomenclature. You answer with JSON only."

func synonymsUserPrompt(name string, maxSynonyms int) string {
	return fmt.Sprintf(`List up to %d English synonyms of the substance named in the angle brackets below. The name itself must be one of the synonyms.
Search the internet when you are not certain.
Answer with a JSON object of the form {"synonyms": ["...", "..."]}.
Answer "None" if no synonyms are found.
<%s>`, maxSynonyms, name)
}
