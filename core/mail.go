package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	"github.com/trezcool/rapor/fs"
)

var (
	templates    tmplCache
	templatesErr error
	tmplInit     sync.Once

	templatesDir = "assets/templates/email"
)

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getTemplate(ext string) (interface{}, bool) {
	cache, ok := templates[m.TemplateName]
	if !ok {
		return nil, ok
	}
	tmplEntry, ok := cache[ext]
	return tmplEntry, ok
}

func (m *EmailMessage) renderText(data ContextData) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".txt")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*texttmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(data ContextData) error {
	if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".gohtml")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*htmltmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

// Render fills TextContent and HTMLContent. Templates are parsed once, on first use.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.TemplateName != "" {
		tmplInit.Do(func() { templates, templatesErr = parseTemplates(appfs.FS) })
		if templatesErr != nil {
			return errors.Wrap(templatesErr, "parsing email templates")
		}
	}
	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	if err := m.renderText(data); err != nil {
		return errors.Wrap(err, "rendering text")
	}
	return errors.Wrap(m.renderHTML(data), "rendering html")
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func parseTemplates(fsys fs.FS) (tmplCache, error) {
	cache := make(tmplCache)

	fps, err := fs.Glob(fsys, path.Join(templatesDir, "*"))
	if err != nil {
		return nil, err
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := cache[name]
		if !ok {
			entry = make(tmplCacheEntry)
			cache[name] = entry
		}

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(fsys, path.Join(templatesDir, "_base.txt"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fp)
			}
			entry[ext] = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(fsys, path.Join(templatesDir, "_base.gohtml"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fp)
			}
			entry[ext] = tmpl.Option("missingkey=error")
		}
	}
	return cache, nil
}
