package elab

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/elabgate/internal/logging"
)

//go:embed default_template.html
var defaultTemplateBody string

// DefaultTemplateBody is the body used when elabgate creates its template.
func DefaultTemplateBody() string { return defaultTemplateBody }

// Environment reports the upstream structures elabgate depends on.
type Environment struct {
	ItemTypeID      int64 `json:"item_type_id"`
	TemplateID      int64 `json:"template_id"`
	CreatedItemType bool  `json:"created_item_type"`
	CreatedTemplate bool  `json:"created_template"`
}

// TestConnection reports whether the configured endpoint is reachable and
// accepts the API key. A rejected key yields false with a nil error; other
// failures yield false with the error.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	_, err := c.list(ctx, "test_connection", "items_types", nil)
	if err == nil {
		return true, nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Unauthorized() {
		return false, nil
	}
	return false, err
}

// EnsureEnvironment creates the patient item type and the default
// experiment template when they are missing. Calling it repeatedly creates
// nothing new.
func (c *Client) EnsureEnvironment(ctx context.Context) (Environment, error) {
	var env Environment
	var err error

	env.ItemTypeID, env.CreatedItemType, err = c.EnsureItemType(ctx)
	if err != nil {
		return env, err
	}
	env.TemplateID, env.CreatedTemplate, err = c.EnsureTemplate(ctx)
	if err != nil {
		return env, err
	}

	c.logger.InfoContext(ctx, "elab environment ready",
		logging.Int64("item_type_id", env.ItemTypeID),
		logging.Int64("template_id", env.TemplateID),
		logging.Bool("created_item_type", env.CreatedItemType),
		logging.Bool("created_template", env.CreatedTemplate),
	)
	return env, nil
}

// EnsureItemType returns the id of the patient item type, creating it when
// absent. The boolean reports whether it was created.
func (c *Client) EnsureItemType(ctx context.Context) (int64, bool, error) {
	title := c.cfg.ItemTypeTitle
	types, err := c.list(ctx, "ensure_item_type", "items_types", nil)
	if err != nil {
		return 0, false, err
	}
	if existing := findByTitle(types, title); existing != nil {
		return int64(existing.ID), false, nil
	}

	id, err := c.create(ctx, "ensure_item_type", "items_types", map[string]any{
		"title": title,
		"body":  "Patients registered through elabgate.",
	}, title)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// EnsureTemplate returns the id of the default experiment template,
// creating it when absent. The boolean reports whether it was created.
func (c *Client) EnsureTemplate(ctx context.Context) (int64, bool, error) {
	title := c.cfg.TemplateTitle
	templates, err := c.ListTemplates(ctx)
	if err != nil {
		return 0, false, err
	}
	if existing := findByTitle(templates, title); existing != nil {
		return int64(existing.ID), false, nil
	}

	id, err := c.create(ctx, "ensure_template", "experiments_templates", map[string]any{
		"title": title,
		"body":  defaultTemplateBody,
	}, title)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	return c.list(ctx, "list_templates", "experiments_templates", nil)
}

// FindTemplate looks a template up by title, ignoring case. When no title
// matches, the configured fallback template is used. Templates listed
// without a body are fetched individually.
func (c *Client) FindTemplate(ctx context.Context, title string) (*Template, error) {
	if strings.TrimSpace(title) == "" {
		title = c.cfg.TemplateTitle
	}
	templates, err := c.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	found := findByTitle(templates, title)
	if found == nil && c.cfg.FallbackTemplateID > 0 {
		for i := range templates {
			if int64(templates[i].ID) == c.cfg.FallbackTemplateID {
				found = &templates[i]
				break
			}
		}
		if found != nil {
			c.logger.WarnContext(ctx, "template not found, using fallback",
				logging.String("template_title", title),
				logging.Int64("fallback_template_id", c.cfg.FallbackTemplateID),
			)
		}
	}
	if found == nil {
		return nil, &NotFoundError{Resource: "template", ID: fmt.Sprintf("%q", title)}
	}

	if strings.TrimSpace(found.Body) == "" {
		var full Template
		path := fmt.Sprintf("experiments_templates/%d", found.ID)
		if err := c.getJSON(ctx, "find_template", path, nil, &full); err != nil {
			return nil, asNotFound(err, "template", int64(found.ID))
		}
		if full.ID == 0 {
			full.ID = found.ID
		}
		return &full, nil
	}
	return found, nil
}

func findByTitle(resources []Resource, title string) *Resource {
	want := strings.ToLower(strings.TrimSpace(title))
	for i := range resources {
		if strings.ToLower(strings.TrimSpace(resources[i].Title)) == want {
			return &resources[i]
		}
	}
	return nil
}
