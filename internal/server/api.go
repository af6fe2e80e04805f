package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"opscycle/internal/assignment"
	"opscycle/internal/audit"
	"opscycle/internal/cycle"
	"opscycle/internal/driver"
	"opscycle/internal/engine"
	"opscycle/internal/model"
	"opscycle/internal/template"
)

// App holds the wired state for the server. This makes it obvious what
// the handlers depend on.
type App struct {
	Engine      *engine.Engine
	Templates   template.Repo
	Assignments assignment.Repo
	Cycles      cycle.Repo
	Driver      *driver.Driver

	// AuditLog is set when the in-memory recorder is wired; the read
	// endpoint is only available then.
	AuditLog *audit.MemoryRecorder
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error string `json:"error"`
	Unmet []cycle.UnmetTask `json:"unmetPrerequisites,omitempty"`
}

// writeErr maps domain errors onto HTTP statuses: not-found 404,
// conflicts 409, guard violations 422, validation 400.
func writeErr(w http.ResponseWriter, err error) {
	body := errBody{Error: err.Error()}
	code := http.StatusBadRequest

	var prereq *cycle.PrerequisiteError
	var badMove *cycle.InvalidTransitionError
	var invalid *template.ValidationError

	switch {
	case errors.Is(err, template.ErrNotFound),
		errors.Is(err, template.ErrDefNotFound),
		errors.Is(err, assignment.ErrNotFound),
		errors.Is(err, cycle.ErrNotFound),
		errors.Is(err, cycle.ErrTaskNotFound):
		code = http.StatusNotFound
	case errors.Is(err, cycle.ErrCycleExists),
		errors.Is(err, cycle.ErrTimeEntryTaken),
		errors.Is(err, template.ErrNameTaken),
		errors.Is(err, template.ErrPositionTaken),
		errors.Is(err, assignment.ErrDuplicate):
		code = http.StatusConflict
	case errors.As(err, &prereq):
		code = http.StatusUnprocessableEntity
		body.Unmet = prereq.Unmet
	case errors.Is(err, cycle.ErrEvidenceMissing), errors.As(err, &badMove):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &invalid),
		errors.Is(err, cycle.ErrBadPeriod),
		errors.Is(err, cycle.ErrMissingTemplate),
		errors.Is(err, engine.ErrDefHasTasks):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, body)
}

// actorFrom trusts the authorization collaborator in front of us: the
// acting identity arrives as a header and is only recorded, never
// re-checked here.
func actorFrom(r *http.Request) model.UserRef {
	if v := r.Header.Get("X-Actor"); v != "" {
		return model.UserRef(v)
	}
	return "anonymous"
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func RegisterAPIRoutes(mux *http.ServeMux, rr *RouteRegistry, app *App) {
	Handle(mux, rr, "GET /api/routes", "List API routes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, rr.List())
	})

	// --- templates ---

	Handle(mux, rr, "POST /api/templates", "Create checklist template", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name               string `json:"name"`
			Category           string `json:"category"`
			RecurrenceType     string `json:"recurrenceType"`
			RecurrenceInterval int    `json:"recurrenceInterval"`
			RecurrenceAnchor   string `json:"recurrenceAnchor"`
			AutoGenerate       bool   `json:"autoGenerate"`
		}
		if !decode(w, r, &body) {
			return
		}
		anchor, err := parseDate(body.RecurrenceAnchor)
		if err != nil {
			http.Error(w, "recurrenceAnchor must be YYYY-MM-DD", 400)
			return
		}
		t, err := app.Templates.CreateTemplate(r.Context(), model.Template{
			Name:               body.Name,
			Category:           body.Category,
			RecurrenceType:     model.RecurrenceType(body.RecurrenceType),
			RecurrenceInterval: body.RecurrenceInterval,
			RecurrenceAnchor:   anchor,
			AutoGenerate:       body.AutoGenerate,
			Active:             true,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, t)
	})

	Handle(mux, rr, "GET /api/templates", "List templates", func(w http.ResponseWriter, r *http.Request) {
		list, err := app.Templates.ListTemplates(r.Context(), r.URL.Query().Get("active") == "1")
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, list)
	})

	Handle(mux, rr, "GET /api/templates/{id}", "Get template with defs", func(w http.ResponseWriter, r *http.Request) {
		t, err := app.Templates.GetTemplate(r.Context(), model.TemplateID(r.PathValue("id")))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, t)
	})

	type defBody struct {
		Title            string            `json:"title"`
		Description      string            `json:"description"`
		Position         int               `json:"position"`
		DueOffset        *model.DueOffset  `json:"dueOffset"`
		EvidenceRequired bool              `json:"evidenceRequired"`
		DependencyIDs    []model.TaskDefID `json:"dependencyIds"`
		Active           *bool             `json:"active"`
		DefaultAssignee  string            `json:"defaultAssignee"`
	}

	Handle(mux, rr, "POST /api/templates/{id}/defs", "Add task def", func(w http.ResponseWriter, r *http.Request) {
		var body defBody
		if !decode(w, r, &body) {
			return
		}
		active := true
		if body.Active != nil {
			active = *body.Active
		}
		def, err := app.Templates.CreateDef(r.Context(), model.TaskDef{
			TemplateID:       model.TemplateID(r.PathValue("id")),
			Title:            body.Title,
			Description:      body.Description,
			Position:         body.Position,
			DueOffset:        body.DueOffset,
			EvidenceRequired: body.EvidenceRequired,
			DependencyIDs:    body.DependencyIDs,
			Active:           active,
			DefaultAssignee:  model.UserRef(body.DefaultAssignee),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, def)
	})

	Handle(mux, rr, "POST /api/templates/{id}/defs/{defId}", "Update task def", func(w http.ResponseWriter, r *http.Request) {
		var body defBody
		if !decode(w, r, &body) {
			return
		}
		active := true
		if body.Active != nil {
			active = *body.Active
		}
		def, err := app.Templates.UpdateDef(r.Context(), model.TaskDef{
			ID:               model.TaskDefID(r.PathValue("defId")),
			TemplateID:       model.TemplateID(r.PathValue("id")),
			Title:            body.Title,
			Description:      body.Description,
			Position:         body.Position,
			DueOffset:        body.DueOffset,
			EvidenceRequired: body.EvidenceRequired,
			DependencyIDs:    body.DependencyIDs,
			Active:           active,
			DefaultAssignee:  model.UserRef(body.DefaultAssignee),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, def)
	})

	Handle(mux, rr, "DELETE /api/templates/{id}/defs/{defId}", "Delete task def (only while uninstantiated)", func(w http.ResponseWriter, r *http.Request) {
		err := app.Engine.DeleteTaskDef(r.Context(),
			model.TemplateID(r.PathValue("id")), model.TaskDefID(r.PathValue("defId")))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]bool{"deleted": true})
	})

	Handle(mux, rr, "POST /api/templates/{id}/reorder", "Reorder task defs atomically", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Order []template.DefPosition `json:"order"`
		}
		if !decode(w, r, &body) {
			return
		}
		if err := app.Engine.ReorderDefs(r.Context(), model.TemplateID(r.PathValue("id")), body.Order, actorFrom(r)); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]bool{"reordered": true})
	})

	// --- assignments ---

	Handle(mux, rr, "POST /api/assignments", "Assign template to client", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ClientRef    string     `json:"clientRef"`
			TemplateID   string     `json:"templateId"`
			AutoGenerate bool       `json:"autoGenerate"`
			Status       string     `json:"status"`
			StartsOn     *time.Time `json:"startsOn"`
			EndsOn       *time.Time `json:"endsOn"`
		}
		if !decode(w, r, &body) {
			return
		}
		a, err := app.Assignments.Create(r.Context(), model.Assignment{
			ClientRef:    model.ClientRef(body.ClientRef),
			TemplateID:   model.TemplateID(body.TemplateID),
			AutoGenerate: body.AutoGenerate,
			Status:       model.AssignmentStatus(body.Status),
			StartsOn:     body.StartsOn,
			EndsOn:       body.EndsOn,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, a)
	})

	Handle(mux, rr, "GET /api/assignments", "List assignments", func(w http.ResponseWriter, r *http.Request) {
		list, err := app.Assignments.List(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, list)
	})

	// --- cycles ---

	Handle(mux, rr, "POST /api/cycles/generate", "Materialize a cycle for a period", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ClientRef    string `json:"clientRef"`
			TemplateID   string `json:"templateId"`
			AssignmentID string `json:"assignmentId"`
			PeriodStart  string `json:"periodStart"`
			PeriodEnd    string `json:"periodEnd"`
		}
		if !decode(w, r, &body) {
			return
		}
		start, err := parseDate(body.PeriodStart)
		if err != nil {
			http.Error(w, "periodStart must be YYYY-MM-DD", 400)
			return
		}
		end, err := parseDate(body.PeriodEnd)
		if err != nil {
			http.Error(w, "periodEnd must be YYYY-MM-DD", 400)
			return
		}

		c, tasks, err := app.Engine.GenerateCycle(r.Context(), cycle.GenerateInput{
			Client:       model.ClientRef(body.ClientRef),
			TemplateID:   model.TemplateID(body.TemplateID),
			AssignmentID: model.AssignmentID(body.AssignmentID),
			PeriodStart:  start,
			PeriodEnd:    end,
			Mode:         model.GenerationManual,
			Actor:        actorFrom(r),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"cycle": c, "tasks": tasks})
	})

	Handle(mux, rr, "GET /api/cycles", "List cycles", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := app.Cycles.ListCycles(r.Context(), cycle.ListFilter{
			Client:   model.ClientRef(q.Get("client")),
			Template: model.TemplateID(q.Get("template")),
			Status:   model.CycleStatus(q.Get("status")),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, list)
	})

	Handle(mux, rr, "GET /api/cycles/{id}", "Get cycle with tasks", func(w http.ResponseWriter, r *http.Request) {
		id := model.CycleID(r.PathValue("id"))
		c, err := app.Cycles.GetCycle(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		tasks, err := app.Cycles.TasksForCycle(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"cycle": c, "tasks": tasks})
	})

	Handle(mux, rr, "POST /api/cycles/{id}/status", "Complete or cancel a cycle", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if !decode(w, r, &body) {
			return
		}
		c, err := app.Engine.SetCycleStatus(r.Context(), model.CycleID(r.PathValue("id")),
			model.CycleStatus(body.Status), actorFrom(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, c)
	})

	// --- tasks ---

	Handle(mux, rr, "POST /api/tasks/{id}/status", "Change task status (guarded)", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if !decode(w, r, &body) {
			return
		}
		t, err := app.Engine.UpdateTaskStatus(r.Context(), model.TaskID(r.PathValue("id")),
			model.TaskStatus(body.Status), actorFrom(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, t)
	})

	Handle(mux, rr, "POST /api/tasks/{id}/complete", "Complete a task", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EvidenceNote string `json:"evidenceNote"`
		}
		if !decode(w, r, &body) {
			return
		}
		t, err := app.Engine.CompleteTask(r.Context(), model.TaskID(r.PathValue("id")),
			body.EvidenceNote, actorFrom(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, t)
	})

	Handle(mux, rr, "POST /api/tasks/{id}/reopen", "Reopen a done task", func(w http.ResponseWriter, r *http.Request) {
		t, err := app.Engine.ReopenTask(r.Context(), model.TaskID(r.PathValue("id")), actorFrom(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, t)
	})

	Handle(mux, rr, "GET /api/tasks/{id}/unmet-prerequisites", "Tasks blocking this one", func(w http.ResponseWriter, r *http.Request) {
		list, err := app.Engine.UnmetPrerequisiteTasks(r.Context(), model.TaskID(r.PathValue("id")))
		if err != nil {
			writeErr(w, err)
			return
		}
		if list == nil {
			list = []model.Task{}
		}
		writeJSON(w, 200, list)
	})

	Handle(mux, rr, "POST /api/tasks/{id}/time-entry", "Link a time entry (empty ref unlinks)", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ref string `json:"ref"`
		}
		if !decode(w, r, &body) {
			return
		}
		t, err := app.Engine.LinkTimeEntry(r.Context(), model.TaskID(r.PathValue("id")),
			model.TimeEntryRef(body.Ref), actorFrom(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, t)
	})

	// --- driver / audit ---

	Handle(mux, rr, "POST /api/driver/tick", "Run one auto-generation sweep now", func(w http.ResponseWriter, r *http.Request) {
		if app.Driver == nil {
			http.Error(w, "driver not enabled", 503)
			return
		}
		res, err := app.Driver.Tick(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, res)
	})

	Handle(mux, rr, "GET /api/audit", "Read audit entries (memory recorder only)", func(w http.ResponseWriter, r *http.Request) {
		if app.AuditLog == nil {
			http.Error(w, "audit log not readable here", 503)
			return
		}
		writeJSON(w, 200, app.AuditLog.Entries(r.URL.Query().Get("entityId")))
	})
}
