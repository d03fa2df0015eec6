// Package message renders the fixed debt notice sent to each student.
//
// Field values are inserted verbatim. The body is HTML, but names,
// disciplines and faculties are not escaped, so markup in the spreadsheet
// reaches the recipient unchanged.
package message

import (
	"strings"
	"text/template"
)

const subjectTemplate = `Задолженность по дисциплине {{.Discipline}}`

const bodyTemplate = `
    <html>
    <body style="font-family: Arial; color: #333;">
      <p>Уважаемый(ая) <b>{{.Name}}</b>,</p>
      <p>Сообщаем Вам, что у Вас имеется задолженность по дисциплине <b>"{{.Discipline}}"</b>.</p>
      <p>Просим в кратчайшие сроки связаться с преподавателем или учебным офисом для её устранения.</p>
      <p style="margin-top:20px;">
         С уважением,<br>
         <b>Деканат факультета {{.Faculty}}</b><br>
         Астана IT Университет
      </p>
    </body>
    </html>
    `

// text/template, unlike html/template, performs no escaping.
var (
	subjectTmpl = template.Must(template.New("subject").Parse(subjectTemplate))
	bodyTmpl    = template.Must(template.New("body").Parse(strings.TrimSpace(bodyTemplate)))
)

type fields struct {
	Name       string
	Discipline string
	Faculty    string
}

// Build returns the subject and HTML body for one student. It is pure: the
// same inputs always produce byte-identical output.
func Build(name, discipline, faculty string) (subject, body string) {
	data := fields{Name: name, Discipline: discipline, Faculty: faculty}
	return render(subjectTmpl, data), render(bodyTmpl, data)
}

func render(t *template.Template, data fields) string {
	var b strings.Builder
	// Execution cannot fail: the templates only reference string fields.
	_ = t.Execute(&b, data)
	return b.String()
}
