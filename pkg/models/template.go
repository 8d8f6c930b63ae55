package models

import (
	"halcyon-cms/pkg/halcyon"
)

// Template is the JSON form of a stored template.
type Template struct {
	Type     string                   `json:"type"`
	Theme    string                   `json:"theme"`
	FileName string                   `json:"fileName"`
	Settings map[string]halcyon.Value `json:"settings"`
	Code     string                   `json:"code,omitempty"`
	Markup   string                   `json:"markup"`
	Content  string                   `json:"content,omitempty"`
	MTime    int64                    `json:"mtime"`
}

// TemplateSummary is the listing form, without bodies.
type TemplateSummary struct {
	FileName string `json:"fileName"`
	Title    string `json:"title,omitempty"`
	MTime    int64  `json:"mtime"`
}

// TemplateInput is the body of create and update requests. For content-only
// types Markup is the whole file. FileName is required on create; an update
// without one keeps the current name.
type TemplateInput struct {
	FileName string                   `json:"fileName"`
	Settings map[string]halcyon.Value `json:"settings"`
	Code     string                   `json:"code"`
	Markup   string                   `json:"markup"`
}

// Attributes flattens the input into model attributes.
func (in TemplateInput) Attributes() map[string]halcyon.Value {
	attrs := make(map[string]halcyon.Value, len(in.Settings)+3)
	for k, v := range in.Settings {
		attrs[k] = v
	}
	attrs[halcyon.AttrFileName] = halcyon.String(in.FileName)
	attrs[halcyon.AttrCode] = halcyon.String(in.Code)
	attrs[halcyon.AttrMarkup] = halcyon.String(in.Markup)
	return attrs
}

func NewTemplate(m *halcyon.Model) Template {
	mtime, _ := m.Get(halcyon.AttrMTime).AsInt()
	return Template{
		Type:     m.Type().Name,
		Theme:    m.Datasource(),
		FileName: m.FileName(),
		Settings: m.Settings(),
		Code:     m.Code(),
		Markup:   m.Markup(),
		Content:  m.Content(),
		MTime:    mtime,
	}
}

func NewTemplateSummary(m *halcyon.Model) TemplateSummary {
	mtime, _ := m.Get(halcyon.AttrMTime).AsInt()
	title, _ := m.Get("title").AsString()
	return TemplateSummary{FileName: m.FileName(), Title: title, MTime: mtime}
}
