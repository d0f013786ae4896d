package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/p-n-ai/recall/internal/srs"
)

const systemPrompt = "You generate high-quality educational flashcards from study material. " +
	"Reply with a single valid JSON object and nothing else."

func typeInstructions(qt srs.QuestionType) string {
	switch qt {
	case srs.MultipleChoice:
		return "The 'question' field poses the inquiry. Include an 'options' array of 3 to 4 distinct choices. " +
			"The 'answer' field must contain only the text of the correct option."
	case srs.FillInBlank:
		return "The 'question' uses '_____' for the blank and the 'answer' is the missing text."
	case srs.TrueOrFalse:
		return "The 'question' is a statement and the 'answer' is 'True' or 'False'."
	case srs.OneWord:
		return "The 'answer' is a single specific keyword or very short phrase taken from the text."
	default:
		return "The 'answer' is a concise explanation or definition, one to three sentences long."
	}
}

func exampleItem(qt srs.QuestionType, sourcePage string) string {
	options := ""
	if qt == srs.MultipleChoice {
		options = ` "options": ["Option A", "Option B", "Correct Option C", "Option D"],`
	}
	return fmt.Sprintf(`{"questions": [{"id": "q1", "question_type": %q, "question": "...",%s "answer": "...", "source_page": %s}]}`,
		qt, options, sourcePage)
}

// desiredQuestions estimates how many cards a block of text supports.
func desiredQuestions(text string, chunked bool) int {
	n := len(strings.Fields(text)) / 40
	if chunked {
		n = min(n, 30)
	} else {
		n = min(n*2, 200)
	}
	return max(n, 10)
}

func textPrompt(text string, qt srs.QuestionType, pages []int, part, parts int) string {
	var sb strings.Builder
	chunked := parts > 1
	want := desiredQuestions(text, chunked)

	fmt.Fprintf(&sb, "Generate flashcards of type %q from the text below.\n", qt)
	fmt.Fprintf(&sb, "Instructions for %q: %s\n", qt, typeInstructions(qt))
	if chunked {
		fmt.Fprintf(&sb, "This is part %d of %d of the document. ", part, parts)
	}
	fmt.Fprintf(&sb, "Aim for at least %d distinct questions and up to %d if the material supports it. ", want, want+10)
	sb.WriteString("Cover the whole text and avoid repeating a question.\n")

	if len(pages) > 0 {
		nums := make([]string, len(pages))
		for i, p := range pages {
			nums[i] = strconv.Itoa(p)
		}
		fmt.Fprintf(&sb, "The text comes from page(s) %s. Set 'source_page' on every question to the page "+
			"(or comma-separated pages) it draws on, or null if unknown.\n", strings.Join(nums, ", "))
	} else {
		sb.WriteString("Set 'source_page' to null.\n")
	}

	sb.WriteString("'options' must be an array only for MCQs and null otherwise.\n")
	fmt.Fprintf(&sb, "Output format: %s\n\n", exampleItem(qt, `"page"`))
	sb.WriteString("Text:\n")
	sb.WriteString(text)
	return sb.String()
}

func imagePrompt(qt srs.QuestionType) string {
	return fmt.Sprintf("Analyze the image and generate 3 to 7 distinct %q questions. Instructions: %s\n"+
		"'options' must be an array only for MCQs and null otherwise. Output format: %s",
		qt, typeInstructions(qt), exampleItem(qt, "null"))
}
