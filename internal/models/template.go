package models

// Template is a named render document containing {{NAME}} placeholders.
// Templates are immutable once loaded in a process lifetime.
type Template struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Document    map[string]any `json:"document"`
}

// TemplateCategory maps a template name to its storage category id.
type TemplateCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
