package api

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/evanrusso/gmailvault/internal/domain"
)

// mapMessage converts a Gmail API Message to the processed domain form
// held in the cache.
func mapMessage(msg *gmailapi.Message, accountID string) *domain.Message {
	var headers []*gmailapi.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	return &domain.Message{
		ID:          msg.Id,
		ThreadID:    msg.ThreadId,
		AccountID:   accountID,
		From:        parseAddress(findHeader(headers, "From")),
		To:          parseAddressList(findHeader(headers, "To")),
		Subject:     findHeader(headers, "Subject"),
		Snippet:     msg.Snippet,
		BodyText:    extractText(msg.Payload),
		Date:        parseDate(findHeader(headers, "Date")),
		Labels:      msg.LabelIds,
		Attachments: extractAttachments(msg.Payload),
		SizeBytes:   msg.SizeEstimate,
		Priority:    domain.PriorityForLabels(msg.LabelIds),
	}
}

// findHeader performs a case-insensitive lookup for a header value.
func findHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	lower := strings.ToLower(name)
	for _, h := range headers {
		if strings.ToLower(h.Name) == lower {
			return h.Value
		}
	}
	return ""
}

// parseAddress parses an RFC 5322 address string, falling back to treating
// the entire string as a bare email if parsing fails.
func parseAddress(s string) domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Address{}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return domain.Address{Email: s}
	}
	return domain.Address{Name: addr.Name, Email: addr.Address}
}

// parseAddressList parses a comma-separated list of RFC 5322 addresses.
func parseAddressList(s string) []domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(s)
	if err != nil {
		parts := strings.Split(s, ",")
		var addrs []domain.Address
		for _, p := range parts {
			if a := parseAddress(p); a.Email != "" {
				addrs = append(addrs, a)
			}
		}
		return addrs
	}
	addrs := make([]domain.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, domain.Address{Name: a.Name, Email: a.Address})
	}
	return addrs
}

// parseDate tries multiple date formats commonly used in email headers.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 -0700",
		"2006-01-02T15:04:05Z07:00",
		"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// extractText recursively extracts the first text/plain part from a
// message payload.
func extractText(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) > 0 {
		for _, part := range payload.Parts {
			if text := extractText(part); text != "" {
				return text
			}
		}
		return ""
	}
	if payload.MimeType == "text/plain" && payload.Body != nil {
		return decodeBase64URL(payload.Body.Data)
	}
	return ""
}

// extractAttachments collects attachment metadata from message parts.
func extractAttachments(payload *gmailapi.MessagePart) []domain.Attachment {
	if payload == nil {
		return nil
	}
	var attachments []domain.Attachment
	collectAttachments(payload, &attachments)
	return attachments
}

func collectAttachments(part *gmailapi.MessagePart, attachments *[]domain.Attachment) {
	if part.Filename != "" && part.Body != nil {
		*attachments = append(*attachments, domain.Attachment{
			ID:       part.Body.AttachmentId,
			Filename: part.Filename,
			MIMEType: part.MimeType,
			Size:     part.Body.Size,
		})
	}
	for _, p := range part.Parts {
		collectAttachments(p, attachments)
	}
}

// decodeBase64URL decodes Gmail's URL-safe base64 strings (no padding).
func decodeBase64URL(s string) string {
	if s == "" {
		return ""
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
	if err != nil {
		return ""
	}
	return string(data)
}
