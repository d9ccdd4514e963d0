package job

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rival420/donwatcher/errors"
)

// Template is a reusable job descriptor. Once any job or schedule references
// a template it becomes immutable: edits would silently rewrite history for
// everything created from it.
type Template struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	JobType   string          `json:"job_type"`
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params,omitempty"`
	Dangerous bool            `json:"dangerous"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewTemplateID generates a template identifier.
func NewTemplateID() string {
	return "TPL_" + uuid.New().String()
}

// CreateTemplate validates and stores a template.
func (s *Store) CreateTemplate(t *Template) error {
	if t.ID == "" {
		t.ID = NewTemplateID()
	}
	if t.Name == "" {
		return errors.Wrap(errors.ErrValidation, "template requires a name")
	}
	if t.JobType == "" {
		return errors.Wrap(errors.ErrValidation, "template requires a job type")
	}
	if _, err := DecodeParams(t.JobType, t.Params); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	params := "{}"
	if len(t.Params) > 0 {
		params = string(t.Params)
	}

	dangerous := 0
	if t.Dangerous {
		dangerous = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO job_templates (id, name, job_type, command, params, dangerous, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.JobType, t.Command, params, dangerous, t.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.NewConflictError("template name already exists: %s", t.Name)
		}
		return errors.Wrapf(err, "create template %s", t.ID)
	}
	return nil
}

// GetTemplate retrieves a template by ID
func (s *Store) GetTemplate(id string) (*Template, error) {
	var t Template
	var params, createdAt string
	var dangerous int

	err := s.db.QueryRow(`
		SELECT id, name, job_type, command, params, dangerous, created_at
		FROM job_templates WHERE id = ?
	`, id).Scan(&t.ID, &t.Name, &t.JobType, &t.Command, &params, &dangerous, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("template not found: %s", id)
		}
		return nil, errors.Wrapf(err, "get template %s", id)
	}

	t.Params = []byte(params)
	t.Dangerous = dangerous != 0
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at for template %s", id)
	}
	return &t, nil
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates() ([]*Template, error) {
	rows, err := s.db.Query(`
		SELECT id, name, job_type, command, params, dangerous, created_at
		FROM job_templates ORDER BY name ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list templates")
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		var t Template
		var params, createdAt string
		var dangerous int
		if err := rows.Scan(&t.ID, &t.Name, &t.JobType, &t.Command, &params, &dangerous, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan template")
		}
		t.Params = []byte(params)
		t.Dangerous = dangerous != 0
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, errors.Wrapf(err, "parse created_at for template %s", t.ID)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// UpdateTemplate replaces the mutable fields of an unreferenced template.
// The no-references guard lives in the UPDATE itself so a job or schedule
// committed between read and write still blocks the edit.
func (s *Store) UpdateTemplate(t *Template) error {
	if _, err := DecodeParams(t.JobType, t.Params); err != nil {
		return err
	}

	params := "{}"
	if len(t.Params) > 0 {
		params = string(t.Params)
	}
	dangerous := 0
	if t.Dangerous {
		dangerous = 1
	}

	result, err := s.db.Exec(`
		UPDATE job_templates SET name = ?, job_type = ?, command = ?, params = ?, dangerous = ?
		WHERE id = ?
		  AND NOT EXISTS (SELECT 1 FROM jobs WHERE template_id = job_templates.id)
		  AND NOT EXISTS (SELECT 1 FROM schedules WHERE template_id = job_templates.id)
	`, t.Name, t.JobType, t.Command, params, dangerous, t.ID)
	if err != nil {
		return errors.Wrapf(err, "update template %s", t.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return s.classifyTemplateWriteMiss(t.ID)
	}
	return nil
}

// DeleteTemplate removes an unreferenced template. Guarded like UpdateTemplate.
func (s *Store) DeleteTemplate(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM job_templates
		WHERE id = ?
		  AND NOT EXISTS (SELECT 1 FROM jobs WHERE template_id = job_templates.id)
		  AND NOT EXISTS (SELECT 1 FROM schedules WHERE template_id = job_templates.id)
	`, id)
	if err != nil {
		return errors.Wrapf(err, "delete template %s", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return s.classifyTemplateWriteMiss(id)
	}
	return nil
}

// classifyTemplateWriteMiss explains a zero-row guarded write: the template
// either does not exist or has gained references and is immutable.
func (s *Store) classifyTemplateWriteMiss(id string) error {
	var refs int
	err := s.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM jobs WHERE template_id = ?)
		     + (SELECT COUNT(*) FROM schedules WHERE template_id = ?)
	`, id, id).Scan(&refs)
	if err != nil {
		return errors.Wrapf(err, "count template references for %s", id)
	}
	if refs > 0 {
		return errors.NewConflictError("template %s is referenced by %d jobs or schedules and is immutable", id, refs)
	}
	return errors.NewNotFoundError("template not found: %s", id)
}
