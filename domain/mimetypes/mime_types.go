package mimetypes

import (
	"guide-chat/domain"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown         MIME = "unknown"
	TextPlain       MIME = "text/plain"
	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ImagePNG        MIME = "image/png"
	ImageJPEG       MIME = "image/jpeg"
	ImageGIF        MIME = "image/gif"
)

// Normalize strips parameters and resolves aliases to the canonical type
// known by mimetype. Unknown but well-formed types are returned as parsed.
func Normalize(raw string) MIME {
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return Unknown
	}
	if known := mimetype.Lookup(mt); known != nil {
		canonical, _, _ := strings.Cut(known.String(), ";")
		return MIME(canonical)
	}
	return MIME(strings.ToLower(mt))
}

func (m MIME) IsImage() bool {
	return strings.HasPrefix(string(m), "image/")
}

// ContentTypeOf derives the message content type from its attachments.
// The first attachment decides, a message without attachments is text.
func ContentTypeOf(attachments []domain.Attachment) domain.ContentType {
	if len(attachments) == 0 {
		return domain.ContentText
	}
	if Normalize(attachments[0].MimeType).IsImage() {
		return domain.ContentImage
	}
	return domain.ContentFile
}
