package arr

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// UserTagPrefix marks tags that attribute a media item to the user who
// requested it, e.g. "added-alice".
const UserTagPrefix = "added-"

// Tag is one label on the service.
type Tag struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Tags returns all tags defined on the service.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var out []Tag
	if err := c.do(ctx, http.MethodGet, "/api/v3/tag", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTag creates a tag with the given label.
func (c *Client) CreateTag(ctx context.Context, label string) error {
	body := map[string]string{"label": label}
	return c.do(ctx, http.MethodPost, "/api/v3/tag", body, nil)
}

// DeleteTag removes a tag by id.
func (c *Client) DeleteTag(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v3/tag/%d", id), nil, nil)
}

// UserTag returns the attribution tag label for a user name.
func UserTag(userName string) string {
	return UserTagPrefix + strings.ToLower(userName)
}

// UserTagID resolves the attribution tag for userName to its id,
// creating the tag if it does not exist yet.
func (c *Client) UserTagID(ctx context.Context, userName string) (int64, error) {
	want := UserTag(userName)

	tags, err := c.Tags(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tags {
		if t.Label == want {
			return t.ID, nil
		}
	}

	if err := c.CreateTag(ctx, want); err != nil {
		return 0, err
	}
	tags, err = c.Tags(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tags {
		if t.Label == want {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("tag %q missing after create", want)
}

// SyncUserTags reconciles attribution tags against the known set of
// user names: missing "added-<user>" tags are created, stale ones
// removed. Tags without the prefix are never touched.
func (c *Client) SyncUserTags(ctx context.Context, userNames []string) error {
	want := make(map[string]bool, len(userNames))
	for _, n := range userNames {
		want[UserTag(n)] = true
	}

	tags, err := c.Tags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}

	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		if strings.HasPrefix(t.Label, UserTagPrefix) {
			have[t.Label] = true
		}
	}

	for label := range want {
		if !have[label] {
			if err := c.CreateTag(ctx, label); err != nil {
				return fmt.Errorf("create tag %q: %w", label, err)
			}
		}
	}
	for _, t := range tags {
		if strings.HasPrefix(t.Label, UserTagPrefix) && !want[t.Label] {
			if err := c.DeleteTag(ctx, t.ID); err != nil {
				return fmt.Errorf("delete tag %q: %w", t.Label, err)
			}
		}
	}
	return nil
}
