package message

import (
	"strings"
	"testing"
)

func TestBuild_Subject(t *testing.T) {
	t.Parallel()

	subject, _ := Build("Alice", "Math", "Sci")
	if subject != "Задолженность по дисциплине Math" {
		t.Errorf("subject: got %q", subject)
	}
}

func TestBuild_BodyEmbedsFields(t *testing.T) {
	t.Parallel()

	_, body := Build("Иванов Иван", "Физика", "ИТ")

	for _, want := range []string{
		"<p>Уважаемый(ая) <b>Иванов Иван</b>,</p>",
		`по дисциплине <b>"Физика"</b>.`,
		"<b>Деканат факультета ИТ</b><br>",
		"Астана IT Университет",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	if !strings.HasPrefix(body, "<html>\n") {
		t.Errorf("body should start with <html>, got %q", body[:min(len(body), 20)])
	}
	if !strings.HasSuffix(body, "</html>") {
		t.Error("body should end with </html>")
	}
}

func TestBuild_IsPure(t *testing.T) {
	t.Parallel()

	s1, b1 := Build("Alice", "Math", "Sci")
	s2, b2 := Build("Alice", "Math", "Sci")
	if s1 != s2 || b1 != b2 {
		t.Error("Build returned different output for identical input")
	}
}

func TestBuild_NoEscaping(t *testing.T) {
	t.Parallel()

	subject, body := Build(`<i>Alice</i> & "Co"`, "R&D", "<Sci>")

	if subject != "Задолженность по дисциплине R&D" {
		t.Errorf("subject: got %q", subject)
	}
	for _, want := range []string{`<b><i>Alice</i> & "Co"</b>`, `<b>"R&D"</b>`, "факультета <Sci></b>"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing verbatim %q", want)
		}
	}
}
