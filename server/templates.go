package server

import (
	"net/http"

	"github.com/Rival420/donwatcher/job"
)

// handleTemplates lists templates or creates a new one.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		templates, err := s.jobs.ListTemplates()
		if err != nil {
			s.logger.Errorw("Failed to list templates", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list templates")
			return
		}
		if templates == nil {
			templates = []*job.Template{}
		}
		writeJSON(w, http.StatusOK, templates)

	case http.MethodPost:
		var t job.Template
		if err := readJSON(w, r, &t); err != nil {
			return
		}
		if err := s.jobs.CreateTemplate(&t); err != nil {
			writeDomainError(w, err)
			return
		}
		s.logger.Infow("Template created",
			"template_id", shortID(t.ID),
			"name", t.Name,
			"dangerous", t.Dangerous)
		writeJSON(w, http.StatusCreated, t)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTemplateByID serves /api/templates/{id}. Updates and deletes are
// refused once the template is referenced anywhere.
func (s *Server) handleTemplateByID(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/templates/")
	if len(parts) != 1 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "template id required")
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		t, err := s.jobs.GetTemplate(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)

	case http.MethodPatch:
		existing, err := s.jobs.GetTemplate(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		patch := *existing
		if err := readJSON(w, r, &patch); err != nil {
			return
		}
		patch.ID = id

		if err := s.jobs.UpdateTemplate(&patch); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, patch)

	case http.MethodDelete:
		if err := s.jobs.DeleteTemplate(id); err != nil {
			writeDomainError(w, err)
			return
		}
		s.logger.Infow("Template deleted", "template_id", shortID(id))
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
