package compose

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

var janeRequest = models.DraftRequest{
	FullName:       "Jane Doe",
	Company:        "Acme",
	RecruiterName:  "Bob",
	RecruiterEmail: "bob@acme.com",
}

const janeResume = "Jane is a software engineer with 3 years experience in backend systems."

func TestBuild_ContainsRequestFields(t *testing.T) {
	b, err := NewPromptBuilder("", DefaultResumeBudget, 0)
	if err != nil {
		t.Fatalf("NewPromptBuilder() error = %v", err)
	}

	prompt, err := b.Build(janeRequest, janeResume)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, want := range []string{
		"Jane Doe",
		"Bob at Acme",
		janeResume,
		"Hi Bob,\nMy name is Jane Doe.",
		"Sincerely,\nJane Doe",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "words minimum") {
		t.Error("prompt should not carry a word-count directive when minWords is 0")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b, err := NewPromptBuilder("", DefaultResumeBudget, 0)
	if err != nil {
		t.Fatal(err)
	}

	first, _ := b.Build(janeRequest, janeResume)
	second, _ := b.Build(janeRequest, janeResume)
	if first != second {
		t.Error("Build() is not deterministic for identical input")
	}
}

func TestBuild_MinWords(t *testing.T) {
	b, err := NewPromptBuilder("", DefaultResumeBudget, 500)
	if err != nil {
		t.Fatal(err)
	}

	prompt, err := b.Build(janeRequest, janeResume)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "- 500 words minimum\n- No headings") {
		t.Errorf("prompt missing word-count directive:\n%s", prompt)
	}
}

func TestBuild_GreetingFallsBackToCompany(t *testing.T) {
	b, err := NewPromptBuilder("Hi {{.Greeting}}", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	req := janeRequest
	req.RecruiterName = " "
	prompt, err := b.Build(req, janeResume)
	if err != nil {
		t.Fatal(err)
	}
	if prompt != "Hi Acme" {
		t.Errorf("Build() = %q, want %q", prompt, "Hi Acme")
	}
}

func TestBuild_TruncatesResume(t *testing.T) {
	b, err := NewPromptBuilder("{{.ResumeSummary}}", 50, 0)
	if err != nil {
		t.Fatal(err)
	}

	resume := "First sentence here. Second sentence is right here. Third one never fits."
	prompt, err := b.Build(janeRequest, resume)
	if err != nil {
		t.Fatal(err)
	}
	if prompt != "First sentence here." {
		t.Errorf("Build() = %q, want only the first sentence", prompt)
	}
}

func TestNewPromptBuilder_InvalidTemplate(t *testing.T) {
	if _, err := NewPromptBuilder("{{.FullName", 0, 0); err == nil {
		t.Error("NewPromptBuilder() should reject a malformed template")
	}
}

func TestTruncateResume(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		budget int
		want   string
	}{
		{
			name:   "Short text untouched",
			text:   janeResume,
			budget: 2000,
			want:   janeResume,
		},
		{
			name:   "Zero budget disables truncation",
			text:   "A. B. C.",
			budget: 0,
			want:   "A. B. C.",
		},
		{
			name:   "Stops before exceeding budget",
			text:   "One two. Three four! Five six? Seven eight.",
			budget: 20,
			want:   "One two. Three four!",
		},
		{
			name:   "Exact fit",
			text:   "Hello there. General Kenobi.",
			budget: 12,
			want:   "Hello there.",
		},
		{
			name:   "Punctuation without space does not split",
			text:   "Version 1.2.3 released. More text follows here.",
			budget: 30,
			want:   "Version 1.2.3 released.",
		},
		{
			name:   "First sentence too long falls back to word cut",
			text:   "a very long sentence without any terminal punctuation at all",
			budget: 20,
			want:   "a very long sentence",
		},
		{
			name:   "Word cut backs off a partial word",
			text:   "skills include distributed systems and more",
			budget: 17,
			want:   "skills include",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateResume(tt.text, tt.budget)
			if got != tt.want {
				t.Errorf("TruncateResume() = %q, want %q", got, tt.want)
			}
			if tt.budget > 0 && utf8.RuneCountInString(got) > tt.budget {
				t.Errorf("TruncateResume() length %d exceeds budget %d", utf8.RuneCountInString(got), tt.budget)
			}
		})
	}
}

func TestTruncateResume_BudgetBound(t *testing.T) {
	resume := strings.Repeat("Built backend services in Go. Led a team of four engineers! ", 100)
	got := TruncateResume(resume, DefaultResumeBudget)
	if n := utf8.RuneCountInString(got); n > DefaultResumeBudget || n == 0 {
		t.Errorf("TruncateResume() length = %d, want 1..%d", n, DefaultResumeBudget)
	}
	if !strings.HasPrefix(resume, got) {
		t.Error("TruncateResume() should return a prefix of the résumé")
	}
}

func TestFixLineBreaks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Joins wrapped lines",
			input: "Hi Bob,\nMy name is Jane Doe.\nI am writing\nto you.",
			want:  "Hi Bob, My name is Jane Doe. I am writing to you.",
		},
		{
			name:  "Preserves paragraph boundary",
			input: "First paragraph\nwraps here.\n\nSecond paragraph.",
			want:  "First paragraph wraps here.\n\nSecond paragraph.",
		},
		{
			name:  "Collapses whitespace runs",
			input: "Too    many\t\tspaces   here.",
			want:  "Too many spaces here.",
		},
		{
			name:  "Extra blank lines collapse to one",
			input: "One.\n\n\n\nTwo.",
			want:  "One.\n\nTwo.",
		},
		{
			name:  "Whitespace-only separator line",
			input: "One.\n  \t\nTwo.",
			want:  "One.\n\nTwo.",
		},
		{
			name:  "CRLF input",
			input: "One\r\nline.\r\n\r\nTwo.",
			want:  "One line.\n\nTwo.",
		},
		{
			name:  "Leading and trailing blank lines dropped",
			input: "\n\n  Body.  \n\n",
			want:  "Body.",
		},
		{
			name:  "Empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FixLineBreaks(tt.input)
			if got != tt.want {
				t.Errorf("FixLineBreaks() = %q, want %q", got, tt.want)
			}
			if again := FixLineBreaks(got); again != got {
				t.Errorf("FixLineBreaks() not idempotent: %q then %q", got, again)
			}
		})
	}
}

func TestFixLineBreaks_ParagraphCount(t *testing.T) {
	input := "Hi Bob,\nMy name is Jane Doe.\n\nI have 3 years of\nbackend experience.\n\n\nSincerely,\nJane Doe"
	got := FixLineBreaks(input)

	paragraphs := strings.Split(got, "\n\n")
	if len(paragraphs) != 3 {
		t.Fatalf("got %d paragraphs, want 3: %q", len(paragraphs), got)
	}
	for _, p := range paragraphs {
		if strings.Contains(p, "\n") {
			t.Errorf("paragraph contains an internal line break: %q", p)
		}
	}
	if paragraphs[1] != "I have 3 years of backend experience." {
		t.Errorf("second paragraph = %q", paragraphs[1])
	}
}
