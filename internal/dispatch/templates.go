package dispatch

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	texttemplate "text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Content is a rendered notification.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// subjectTemplates are authored per kind; body templates live in templates/.
var subjectTemplates = map[Kind]string{
	KindWelcome:         "Welcome to Spotfound, {{.Name}}!",
	KindBusinessWelcome: "{{title .ShopName}} is now on Spotfound",
	KindSpotCreated:     "Your listing “{{.SpotTitle}}” is live",
	KindSpotSighting:    "New sighting reported for {{.SpotTitle}}",
	KindSpotFound:       "Great news: {{.SpotTitle}} is marked found",
	KindPasswordReset:   "Reset your Spotfound password",
	KindVerifyEmail:     "Confirm your email address",
	KindAdminAlert:      "[admin] {{.Summary}}",
}

// Registry maps a notification kind to its renderer. Rendering is a pure
// function of the payload, so identical input yields identical output.
type Registry struct {
	bodies   map[Kind]*template.Template
	subjects map[Kind]*texttemplate.Template
}

// NewRegistry loads and parses all embedded templates.
func NewRegistry() (*Registry, error) {
	titleCaser := cases.Title(language.English)
	funcMap := template.FuncMap{
		"title": titleCaser.String,
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	r := &Registry{
		bodies:   make(map[Kind]*template.Template),
		subjects: make(map[Kind]*texttemplate.Template),
	}

	for kind, subject := range subjectTemplates {
		name := string(kind)

		content, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s.tmpl", name))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}

		body, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		// Subjects are plain text, no HTML escaping.
		subj, err := texttemplate.New(name + "_subject").Funcs(texttemplate.FuncMap(funcMap)).Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", name, err)
		}

		r.bodies[kind] = body
		r.subjects[kind] = subj
	}

	return r, nil
}

// Has reports whether a renderer is registered for kind.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.bodies[kind]
	return ok
}

// Render produces subject, HTML and text content for a stored payload.
func (r *Registry) Render(kind Kind, rawPayload []byte) (Content, error) {
	body, ok := r.bodies[kind]
	if !ok {
		return Content{}, fmt.Errorf("render %s: %w", kind, ErrTemplateNotFound)
	}

	payload, err := decodePayload(kind, rawPayload)
	if err != nil {
		return Content{}, err
	}

	var subjBuf bytes.Buffer
	if err := r.subjects[kind].Execute(&subjBuf, payload); err != nil {
		return Content{}, fmt.Errorf("render %s subject: %w", kind, err)
	}

	var htmlBuf bytes.Buffer
	if err := body.Execute(&htmlBuf, payload); err != nil {
		return Content{}, fmt.Errorf("render %s body: %w", kind, err)
	}

	htmlStr := strings.TrimSpace(htmlBuf.String())

	return Content{
		Subject: strings.TrimSpace(subjBuf.String()),
		HTML:    htmlStr,
		Text:    htmlToText(htmlStr),
	}, nil
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// htmlToText derives the plain-text alternative from rendered HTML:
// block-level closers become newlines, tags are stripped, entities decoded
// and whitespace collapsed.
func htmlToText(s string) string {
	for _, tag := range []string{"</p>", "</div>", "</h1>", "</h2>", "</h3>", "</li>", "<br>", "<br/>", "<br />"} {
		s = strings.ReplaceAll(s, tag, tag+"\n")
	}

	s = tagPattern.ReplaceAllString(s, "")
	s = unescapeEntities(s)
	s = whitespacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = blankLinePattern.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#34;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func unescapeEntities(s string) string {
	return entityReplacer.Replace(s)
}
