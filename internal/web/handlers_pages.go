package web

import (
	"net/http"

	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/relay"
	"github.com/emiliopalmerini/elabgate/internal/shared/middleware"
	"github.com/emiliopalmerini/elabgate/internal/util"
	"github.com/emiliopalmerini/elabgate/internal/web/templates"
)

// notices are the confirmations a redirect may ask a page to show.
var notices = map[string]string{
	"patient":    "Patient registered.",
	"experiment": "Experiment created.",
	"status":     "Status updated.",
	"results":    "Results saved.",
}

func navFor(actor *domain.Account, active string) templates.Nav {
	return templates.Nav{AccountName: actor.Name, Role: string(actor.Role), Active: active}
}

func flashFrom(r *http.Request) templates.Flash {
	return templates.Flash{Notice: notices[r.URL.Query().Get("done")]}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.accountID(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, templates.LoginPage(""))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	account, err := s.relay.Login(r.Context(), r.FormValue("name"), r.FormValue("password"))
	if err != nil {
		msg := "Invalid name or password."
		if relay.ErrorKind(err) != "unauthorized" {
			msg = "Sign in failed, try again later."
		}
		s.render(w, r, http.StatusUnauthorized, templates.LoginPage(msg))
		return
	}
	s.sessions.issue(w, account.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.clear(w)
	middleware.Redirect(w, r, "/login", http.StatusOK)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	s.render(w, r, http.StatusOK, templates.HomePage(templates.HomeView{
		Nav:          navFor(actor, "/"),
		Flash:        flashFrom(r),
		ElabURL:      s.elabURL,
		CanConfigure: actor.Role == domain.RoleAdmin,
	}))
}

// Fragment handlers answer 200 even on failure so htmx swaps the message in.

func (s *Server) handleUIConnection(w http.ResponseWriter, r *http.Request, _ *domain.Account) {
	ok, err := s.relay.TestConnection(r.Context())
	if err != nil {
		s.render(w, r, http.StatusOK, templates.ConnectionResult(false, err.Error()))
		return
	}
	s.render(w, r, http.StatusOK, templates.ConnectionResult(ok, connectionMessage(ok)))
}

func (s *Server) handleUIEnvironment(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	if err := requireAdmin(actor); err != nil {
		s.render(w, r, http.StatusOK, templates.ErrorFragment(err.Error()))
		return
	}
	env, err := s.relay.EnsureEnvironment(r.Context())
	if err != nil {
		s.render(w, r, http.StatusOK, templates.ErrorFragment(err.Error()))
		return
	}
	s.render(w, r, http.StatusOK, templates.EnvironmentResult(env.ItemTypeID, env.TemplateID, env.CreatedItemType, env.CreatedTemplate))
}

func (s *Server) handleUITemplateFields(w http.ResponseWriter, r *http.Request, _ *domain.Account) {
	sampleType := r.URL.Query().Get("sample_type")
	fields, err := s.relay.TemplateFields(r.Context(), sampleType)
	if err != nil {
		s.render(w, r, http.StatusOK, templates.ErrorFragment(err.Error()))
		return
	}
	s.render(w, r, http.StatusOK, templates.TemplateFields(sampleType, fields))
}

func (s *Server) patientsView(r *http.Request, actor *domain.Account) (templates.PatientsView, error) {
	view := templates.PatientsView{Nav: navFor(actor, "/patients"), Flash: flashFrom(r)}
	patients, err := s.relay.ListPatients(r.Context())
	if err != nil {
		return view, err
	}
	for _, p := range patients {
		view.Patients = append(view.Patients, templates.PatientRow{
			ID:         p.ID,
			Name:       p.Name,
			ElabItemID: p.ElabItemID,
			CreatedAt:  util.FormatDateTime(p.CreatedAt),
		})
	}
	return view, nil
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	view, err := s.patientsView(r, actor)
	status := http.StatusOK
	if err != nil {
		view.Flash.Error = err.Error()
		status = statusFor(relay.ErrorKind(err))
	}
	s.render(w, r, status, templates.PatientsPage(view))
}

func (s *Server) handleRegisterPatient(w http.ResponseWriter, r *http.Request, actor *domain.Account) {
	_, err := s.relay.RegisterPatient(r.Context(), r.FormValue("name"))
	if err == nil {
		http.Redirect(w, r, "/patients?done=patient", http.StatusSeeOther)
		return
	}
	view, listErr := s.patientsView(r, actor)
	if listErr != nil {
		s.logger.WarnContext(r.Context(), "list patients failed", logging.Error(listErr))
	}
	view.Flash = templates.Flash{Error: err.Error()}
	s.render(w, r, statusFor(relay.ErrorKind(err)), templates.PatientsPage(view))
}
