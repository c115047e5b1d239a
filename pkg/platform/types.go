package platform

import (
	"time"

	"github.com/sells-group/acquisition-cli/internal/model"
)

// Sort selects which posts of a tag page are returned.
type Sort string

const (
	SortTop    Sort = "top"
	SortRecent Sort = "recent"
)

// Account is a handle extracted from a listing page.
type Account struct {
	Handle    string `json:"handle"`
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email,omitempty"`
	IsPrivate bool   `json:"is_private"`
}

// Page is one listing response: tag posts, location posts or followers.
type Page struct {
	Accounts   []Account `json:"accounts"`
	NextCursor string    `json:"next_cursor,omitempty"`
	// Raw is the response body, kept only for audit.
	Raw []byte `json:"-"`
}

// Profile is a full profile fetch.
type Profile struct {
	Handle         string `json:"handle"`
	FullName       string `json:"full_name"`
	Bio            string `json:"bio"`
	Email          string `json:"email,omitempty"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	PostCount      int    `json:"post_count"`
	IsPrivate      bool   `json:"is_private"`
	IsVerified     bool   `json:"is_verified"`
	ExternalURL    string `json:"external_url,omitempty"`
	// Raw is the response body, kept only for audit.
	Raw []byte `json:"-"`
}

// ToModel converts the fetch result into the stored profile shape.
func (p *Profile) ToModel(at time.Time) model.Profile {
	return model.Profile{
		FullName:       p.FullName,
		Bio:            p.Bio,
		FollowerCount:  p.FollowerCount,
		FollowingCount: p.FollowingCount,
		PostCount:      p.PostCount,
		IsPrivate:      p.IsPrivate,
		IsVerified:     p.IsVerified,
		ExternalURL:    p.ExternalURL,
		EnrichedAt:     at,
	}
}

type privacyResponse struct {
	IsPrivate bool `json:"is_private"`
}
