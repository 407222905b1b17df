package correct

import "fmt"

const promptTemplate = `The speech-to-text system produced this raw transcript:

"%s"

Based on our current conversation context, please provide the corrected version that makes sense and is grammatically correct.

Please respond with ONLY the corrected transcript text, no explanations or quotes.`

// BuildPrompt renders the correction prompt, preceded by background when it
// is not empty.
func BuildPrompt(raw, background string) string {
	p := fmt.Sprintf(promptTemplate, raw)
	if background == "" {
		return p
	}
	return background + "\n\n" + p
}
