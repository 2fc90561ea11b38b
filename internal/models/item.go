package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item is a single collected edital (funding call) row.
type Item struct {
	UID         string                 `json:"uid"`
	Group       string                 `json:"group"`
	Source      string                 `json:"source"`
	Title       string                 `json:"title"`
	Link        string                 `json:"link"`
	DeadlineAt  *time.Time             `json:"deadline_at"`
	PublishedAt *time.Time             `json:"published_at"`
	Agency      string                 `json:"agency"`
	Region      string                 `json:"region"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Seen        bool                   `json:"seen"`
	Status      string                 `json:"status"`
	Notes       string                 `json:"notes"`
	DoNotShow   bool                   `json:"do_not_show"`
}

// UID derives the stable identity of an item from the fields that make it
// the same announcement: group, source, title and link.
func UID(group, source, title, link string) string {
	h := sha256.Sum256([]byte(group + "|" + source + "|" + title + "|" + link))
	return hex.EncodeToString(h[:])
}

// StatusPending is the default review status for freshly collected items.
const StatusPending = "pendente"

// StatusChoices is the fixed review taxonomy, in display order.
var StatusChoices = []string{"pendente", "verificando", "submetido", "não submetido"}

// StatusBackground maps each status to its UI background color.
var StatusBackground = map[string]string{
	"pendente":      "#fff3cd",
	"verificando":   "#cfe2ff",
	"submetido":     "#d1e7dd",
	"não submetido": "#f8d7da",
}

// StatusColors maps each status to its UI text color.
var StatusColors = map[string]string{
	"pendente":      "#664d03",
	"verificando":   "#084298",
	"submetido":     "#0f5132",
	"não submetido": "#842029",
}

// ValidStatus reports whether s is one of the review statuses.
func ValidStatus(s string) bool {
	for _, c := range StatusChoices {
		if c == s {
			return true
		}
	}
	return false
}

// DeadlineISO renders the deadline for API payloads, empty when unknown.
func (it Item) DeadlineISO() string {
	if it.DeadlineAt == nil {
		return ""
	}
	return it.DeadlineAt.UTC().Format(time.RFC3339)
}

// PublishedISO renders the published timestamp for API payloads.
func (it Item) PublishedISO() string {
	if it.PublishedAt == nil {
		return ""
	}
	return it.PublishedAt.UTC().Format(time.RFC3339)
}
