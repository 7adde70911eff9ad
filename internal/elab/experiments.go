package elab

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/results"
)

var pdfSignature = []byte("%PDF")

// ExperimentFields describes an experiment to create. Vars fill the
// {{key}} placeholders of the template body.
type ExperimentFields struct {
	Title         string            `json:"title"`
	TemplateTitle string            `json:"template_title,omitempty"`
	Vars          map[string]string `json:"vars,omitempty"`
}

// CreateExperiment creates an experiment from a template and links it to
// the patient item. A patient id unknown upstream fails with the
// UpstreamError of the lookup before anything is created.
//
// When a step after creation fails the returned id is the created
// experiment, alongside the error.
func (c *Client) CreateExperiment(ctx context.Context, patientID int64, fields ExperimentFields) (int64, error) {
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		return 0, fmt.Errorf("%w: experiment title is required", ErrInvalidInput)
	}
	if patientID <= 0 {
		return 0, fmt.Errorf("%w: patient id must be positive", ErrInvalidInput)
	}

	if err := c.getJSON(ctx, "create_experiment", fmt.Sprintf("items/%d", patientID), nil, nil); err != nil {
		return 0, err
	}

	tmpl, err := c.FindTemplate(ctx, fields.TemplateTitle)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(tmpl.Body) == "" {
		return 0, fmt.Errorf("template %q: %w", tmpl.Title, ErrEmptyTemplate)
	}

	id, err := c.create(ctx, "create_experiment", "experiments", map[string]any{"title": title}, title)
	if err != nil {
		return 0, err
	}

	body := results.Render(tmpl.Body, fields.Vars)
	if err := c.UpdateBody(ctx, id, body); err != nil {
		c.logger.ErrorContext(ctx, "experiment created but body update failed",
			logging.Int64(logging.FieldExperimentID, id),
			logging.Error(err),
		)
		return id, err
	}
	if err := c.LinkExperimentToItem(ctx, id, patientID); err != nil {
		c.logger.ErrorContext(ctx, "experiment created but link to patient failed",
			logging.Int64(logging.FieldExperimentID, id),
			logging.Int64(logging.FieldItemID, patientID),
			logging.Error(err),
		)
		return id, err
	}

	c.logger.InfoContext(ctx, "experiment created",
		logging.Int64(logging.FieldExperimentID, id),
		logging.Int64(logging.FieldItemID, patientID),
		logging.Int64("template_id", int64(tmpl.ID)),
	)
	return id, nil
}

// LinkExperimentToItem links an experiment to an item. Installations that
// reject the path form are retried once with the id in the body.
func (c *Client) LinkExperimentToItem(ctx context.Context, experimentID, itemID int64) error {
	direct := fmt.Sprintf("experiments/%d/items_links/%d", experimentID, itemID)
	_, err := c.send(ctx, request{op: "link_item", method: http.MethodPost, path: direct, body: map[string]any{}})
	if err == nil {
		return nil
	}
	if !isUpstream(err) {
		return err
	}

	c.logger.WarnContext(ctx, "direct item link rejected, using body form",
		logging.Int64(logging.FieldExperimentID, experimentID),
		logging.Error(err),
	)
	_, err = c.send(ctx, request{
		op:     "link_item",
		method: http.MethodPost,
		path:   fmt.Sprintf("experiments/%d/items_links", experimentID),
		body:   map[string]any{"id": itemID},
	})
	return err
}

func (c *Client) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	var exp Experiment
	if err := c.getJSON(ctx, "get_experiment", fmt.Sprintf("experiments/%d", id), nil, &exp); err != nil {
		return nil, asNotFound(err, "experiment", id)
	}
	if exp.ID == 0 {
		exp.ID = ID(id)
	}
	return &exp, nil
}

// GetStatus returns the current status of an experiment.
func (c *Client) GetStatus(ctx context.Context, id int64) (Status, error) {
	exp, err := c.GetExperiment(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return Status{ExperimentID: id, Title: exp.Title, Status: exp.StatusText()}, nil
}

func (c *Client) UpdateBody(ctx context.Context, id int64, body string) error {
	err := c.patch(ctx, "update_body", fmt.Sprintf("experiments/%d", id), map[string]any{"body": body})
	return asNotFound(err, "experiment", id)
}

// SetStatus sends status to eLabFTW as given.
func (c *Client) SetStatus(ctx context.Context, id int64, status any) error {
	err := c.patch(ctx, "set_status", fmt.Sprintf("experiments/%d", id), map[string]any{"status": status})
	return asNotFound(err, "experiment", id)
}

// ExportPDF renders an experiment as PDF. Experiments with nothing to
// export yield a NotFoundError.
func (c *Client) ExportPDF(ctx context.Context, id int64, changelog bool) ([]byte, error) {
	query := url.Values{"format": {"pdf"}}
	if changelog {
		query.Set("changelog", "true")
	}
	resp, err := c.send(ctx, request{
		op:     "export_pdf",
		method: http.MethodGet,
		path:   fmt.Sprintf("experiments/%d", id),
		query:  query,
		accept: "application/pdf",
	})
	if err != nil {
		return nil, asNotFound(err, "experiment", id)
	}
	if len(resp.body) == 0 {
		return nil, &NotFoundError{Resource: "experiment pdf", ID: fmt.Sprint(id)}
	}
	if !bytes.HasPrefix(resp.body, pdfSignature) {
		return nil, &NotFoundError{
			Resource: "experiment pdf",
			ID:       fmt.Sprint(id),
			Err:      fmt.Errorf("response is not a pdf document"),
		}
	}
	return resp.body, nil
}
