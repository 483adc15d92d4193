package services

import (
	"fmt"
	"guide-chat/domain"
	"guide-chat/errors"
	"net/url"
	"strings"
)

// ParseDeepLink reads the chat target from a link query.
// guide and user carry a slug, guideId and userId carry an id.
func ParseDeepLink(raw string) (domain.Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return domain.Target{}, fmt.Errorf("%w: %v", errors.ErrInvalidDeepLink, err)
	}
	q := u.Query()

	candidates := []struct {
		role domain.Role
		slug string
		id   string
	}{
		{domain.RoleGuide, q.Get("guide"), q.Get("guideId")},
		{domain.RoleUser, q.Get("user"), q.Get("userId")},
	}
	for _, c := range candidates {
		slug, id := strings.TrimSpace(c.slug), strings.TrimSpace(c.id)
		if slug == "" && id == "" {
			continue
		}
		return domain.Target{ID: domain.ParticipantID(id), Slug: slug, Role: c.role}, nil
	}
	return domain.Target{}, errors.ErrInvalidDeepLink
}
