package elab

import (
	"context"
	"fmt"
	"strings"
)

// PatientFields describes the eLabFTW item created for a patient.
type PatientFields struct {
	Name string `json:"name"`
	Body string `json:"body,omitempty"`
}

// RegisterPatient creates an item of the patient item type and returns its
// id. The item type is created first when missing.
func (c *Client) RegisterPatient(ctx context.Context, fields PatientFields) (int64, error) {
	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return 0, fmt.Errorf("%w: patient name is required", ErrInvalidInput)
	}

	typeID, _, err := c.EnsureItemType(ctx)
	if err != nil {
		return 0, err
	}

	payload := map[string]any{
		"title":         name,
		"category_id":   typeID,
		"items_type_id": typeID,
	}
	if body := strings.TrimSpace(fields.Body); body != "" {
		payload["body"] = body
	}
	return c.create(ctx, "register_patient", "items", payload, name)
}

// GetItem fetches a single item.
func (c *Client) GetItem(ctx context.Context, id int64) (*Resource, error) {
	var item Resource
	if err := c.getJSON(ctx, "get_item", fmt.Sprintf("items/%d", id), nil, &item); err != nil {
		return nil, asNotFound(err, "item", id)
	}
	return &item, nil
}
