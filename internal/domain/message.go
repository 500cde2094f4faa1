package domain

import "time"

type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

type Attachment struct {
	ID       string
	Filename string
	MIMEType string
	Size     int64
}

// Message is a processed mail message as held in the local cache.
type Message struct {
	ID          string
	ThreadID    string
	AccountID   string
	From        Address
	To          []Address
	Subject     string
	Snippet     string
	BodyText    string
	Date        time.Time
	Labels      []string
	Attachments []Attachment
	SizeBytes   int64
	Priority    int
}

func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Retention priorities for cached messages. Higher priorities survive
// eviction longer.
const (
	PriorityNormal    = 0
	PriorityInbox     = 1
	PriorityStarred   = 2
	PriorityImportant = 3
)

// PriorityForLabels derives a retention priority from Gmail labels.
func PriorityForLabels(labels []string) int {
	p := PriorityNormal
	for _, l := range labels {
		switch l {
		case "INBOX":
			if p < PriorityInbox {
				p = PriorityInbox
			}
		case "STARRED":
			if p < PriorityStarred {
				p = PriorityStarred
			}
		case "IMPORTANT":
			if p < PriorityImportant {
				p = PriorityImportant
			}
		}
	}
	return p
}
