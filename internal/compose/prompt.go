package compose

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// DefaultResumeBudget is the character budget for the résumé excerpt
const DefaultResumeBudget = 2000

//go:embed templates/cold_email.tmpl
var defaultTemplate string

// PromptData is the set of values available to a prompt template
type PromptData struct {
	FullName      string
	ResumeSummary string
	RecruiterName string
	Company       string
	Greeting      string
	MinWords      int
}

// PromptBuilder renders generation prompts from a template
type PromptBuilder struct {
	tmpl     *template.Template
	budget   int
	minWords int
}

// NewPromptBuilder parses tmplText, or the built-in cold email template when
// tmplText is empty. A budget of zero or less disables résumé truncation and
// a minWords of zero omits the word-count directive.
func NewPromptBuilder(tmplText string, budget, minWords int) (*PromptBuilder, error) {
	if tmplText == "" {
		tmplText = defaultTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(tmplText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl, budget: budget, minWords: minWords}, nil
}

// NewPromptBuilderFromFile is NewPromptBuilder with the template read from path
func NewPromptBuilderFromFile(path string, budget, minWords int) (*PromptBuilder, error) {
	if path == "" {
		return NewPromptBuilder("", budget, minWords)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return NewPromptBuilder(string(data), budget, minWords)
}

// Build renders the prompt for a request and the extracted résumé text
func (b *PromptBuilder) Build(req models.DraftRequest, resumeText string) (string, error) {
	greeting := strings.TrimSpace(req.RecruiterName)
	if greeting == "" {
		greeting = strings.TrimSpace(req.Company)
	}

	data := PromptData{
		FullName:      strings.TrimSpace(req.FullName),
		ResumeSummary: TruncateResume(resumeText, b.budget),
		RecruiterName: strings.TrimSpace(req.RecruiterName),
		Company:       strings.TrimSpace(req.Company),
		Greeting:      greeting,
		MinWords:      b.minWords,
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// TruncateResume returns a prefix of text made of whole sentences whose
// length does not exceed budget characters. Sentences end at '.', '!' or '?'
// followed by spaces. When not even the first sentence fits, the text is cut
// at the last word boundary inside the budget. budget <= 0 returns the text
// trimmed but otherwise untouched.
func TruncateResume(text string, budget int) string {
	text = strings.TrimSpace(text)
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}

	var sb strings.Builder
	length := 0
	for _, s := range splitSentences(text) {
		n := utf8.RuneCountInString(s)
		if length+n > budget {
			break
		}
		sb.WriteString(s)
		sb.WriteByte(' ')
		length += n + 1
	}

	if summary := strings.TrimSpace(sb.String()); summary != "" {
		return summary
	}
	return cutAtWord(text, budget)
}

// splitSentences splits after sentence-ending punctuation followed by one or
// more spaces. The separating spaces are dropped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i + 1
		for j < len(text) && text[j] == ' ' {
			j++
		}
		if j == i+1 {
			continue
		}
		sentences = append(sentences, text[start:i+1])
		start = j
		i = j - 1
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func cutAtWord(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	cut := runes[:budget]
	if !unicode.IsSpace(runes[budget]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimSpace(string(cut))
}
