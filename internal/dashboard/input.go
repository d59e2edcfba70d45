package dashboard

import (
	"net/url"
	"strings"

	svcerrors "github.com/qkgalias/capstone-hub/internal/errors"
	"github.com/qkgalias/capstone-hub/internal/ordering"
)

// Input is the add/edit form.
type Input struct {
	Title    string `json:"title"`
	Category string `json:"type"`
	Link     string `json:"link"`
}

// normalize trims every field, maps a blank category to the catalog
// fallback and checks the required fields.
func (in Input) normalize(c *ordering.Catalog) (Input, error) {
	out := Input{
		Title:    strings.TrimSpace(in.Title),
		Category: c.Normalize(in.Category),
		Link:     strings.TrimSpace(in.Link),
	}
	if out.Title == "" {
		return Input{}, svcerrors.Validation("Title is required.")
	}
	if out.Link == "" {
		return Input{}, svcerrors.Validation("Link is required.")
	}
	u, err := url.Parse(out.Link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Input{}, svcerrors.Validation("Link must be an http or https URL.")
	}
	return out, nil
}
