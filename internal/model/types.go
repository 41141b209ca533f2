package model

import (
	"fmt"
	"strings"
)

// ContentType is the kind of WordPress entity a row targets.
type ContentType string

const (
	ContentAuto     ContentType = ""
	ContentPost     ContentType = "post"
	ContentPage     ContentType = "page"
	ContentCategory ContentType = "category"
)

// ParseContentType normalises a type cell. An empty cell yields ContentAuto.
func ParseContentType(raw string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ContentAuto, nil
	case "post", "posts":
		return ContentPost, nil
	case "page", "pages":
		return ContentPage, nil
	case "category", "categories":
		return ContentCategory, nil
	default:
		return ContentType(strings.ToLower(strings.TrimSpace(raw))), fmt.Errorf("unsupported content type %q", raw)
	}
}

// Collection returns the REST collection name for the type.
func (t ContentType) Collection() string {
	switch t {
	case ContentPost:
		return "posts"
	case ContentPage:
		return "pages"
	case ContentCategory:
		return "categories"
	default:
		return ""
	}
}

// Supported reports whether the type addresses a known collection.
func (t ContentType) Supported() bool {
	return t.Collection() != ""
}

func (t ContentType) String() string {
	if t == ContentAuto {
		return "auto"
	}
	return string(t)
}

// Mode selects between appending a fragment and clearing the stored schema.
type Mode int

const (
	ModeInsert Mode = iota
	ModeDelete
)

func (m Mode) String() string {
	if m == ModeDelete {
		return "delete"
	}
	return "insert"
}

// ParseMode accepts "insert" or "delete".
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "insert", "add":
		return ModeInsert, nil
	case "delete", "clear":
		return ModeDelete, nil
	default:
		return ModeInsert, fmt.Errorf("unknown mode %q", raw)
	}
}

// Account holds the API location and credentials of one site.
// Either Token (bearer) or Username/AppPassword (basic auth) is set.
type Account struct {
	Site        string
	BaseURL     string
	Username    string
	AppPassword string
	Token       string
}

// SiteKey is the lookup key used by the registry.
func SiteKey(site string) string {
	return strings.ToLower(strings.TrimSpace(site))
}

// WorkItem is one data row of the input spreadsheet.
type WorkItem struct {
	Seq    int
	URL    string
	Type   ContentType
	Site   string // empty in single-account sheets
	Schema string // empty in delete mode
}
