package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/analytics"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/notes"
	"github.com/foxseedlab/bonfire/internal/repository"
)

type nameRequest struct {
	Name string `json:"name"`
}

type verifyUserResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type verifyChannelResponse struct {
	Success   bool   `json:"success"`
	ChannelID string `json:"channel_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) verifyUser(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(r, &req) {
		writeFailure(w, http.StatusBadRequest, reasonInvalidBody)
		return
	}
	res := s.deps.Verifier.VerifyAndRegisterUser(r.Context(), req.Name)
	writeJSON(w, http.StatusOK, verifyUserResponse{Success: res.Success, UserID: res.ID, Reason: res.Reason})
}

func (s *Server) verifyChannel(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(r, &req) {
		writeFailure(w, http.StatusBadRequest, reasonInvalidBody)
		return
	}
	res := s.deps.Verifier.VerifyAndRegisterChannel(r.Context(), req.Name)
	writeJSON(w, http.StatusOK, verifyChannelResponse{Success: res.Success, ChannelID: res.ID, Reason: res.Reason})
}

type memberInfoResponse struct {
	Success     bool     `json:"success"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles"`
	Reason      string   `json:"reason,omitempty"`
}

func (s *Server) memberInfo(w http.ResponseWriter, r *http.Request) {
	member, err := s.deps.Members.GetMember(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		reason := reasonNotReady
		if errors.Is(err, discord.ErrMemberNotFound) {
			reason = reasonNotFound
		}
		writeJSON(w, http.StatusOK, memberInfoResponse{Roles: []string{}, Reason: reason})
		return
	}
	writeJSON(w, http.StatusOK, memberInfoResponse{
		Success:     true,
		DisplayName: member.DisplayName,
		Roles:       member.RoleNames(),
	})
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var in notes.NoteInput
	if !decodeJSON(r, &in) {
		writeFailure(w, http.StatusBadRequest, reasonInvalidBody)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Notes.Submit(r.Context(), in))
}

func (s *Server) viewNotes(w http.ResponseWriter, r *http.Request) {
	uid, err := s.deps.Links.Parse(r.URL.Query().Get("token"))
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, reasonInvalidToken)
		return
	}
	member, err := s.deps.Members.GetMember(r.Context(), uid)
	if err != nil {
		// An unknown viewer gets the same empty feed as one without roles.
		if !errors.Is(err, discord.ErrMemberNotFound) {
			writeFailure(w, http.StatusServiceUnavailable, reasonNotReady)
			return
		}
		member = discord.Member{ID: uid}
	}
	writeJSON(w, http.StatusOK, s.deps.Notes.Feed(r.Context(), access.NewRoleSet(member.RoleNames()...)))
}

type trackedUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	RoleName string `json:"role_name"`
}

type trackedChannel struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
}

type mutationResponse struct {
	Success bool `json:"success"`
}

func (s *Server) listTrackedUsers(w http.ResponseWriter, r *http.Request) {
	users := s.deps.Store.ListTrackedUsers(r.Context())
	out := make([]trackedUser, 0, len(users))
	for _, u := range users {
		out = append(out, trackedUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteTrackedUser(w http.ResponseWriter, r *http.Request) {
	ok := s.deps.Store.DeleteTrackedUser(r.Context(), chi.URLParam(r, "userID"))
	writeJSON(w, http.StatusOK, mutationResponse{Success: ok})
}

func (s *Server) listTrackedChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.deps.Store.ListTrackedChannels(r.Context())
	out := make([]trackedChannel, 0, len(channels))
	for _, c := range channels {
		out = append(out, trackedChannel(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) disableTrackedChannel(w http.ResponseWriter, r *http.Request) {
	ok := s.deps.Store.DisableTrackedChannel(r.Context(), chi.URLParam(r, "channelID"))
	writeJSON(w, http.StatusOK, mutationResponse{Success: ok})
}

type recordedUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) recordedUsers(w http.ResponseWriter, r *http.Request) {
	users := s.deps.Store.ListRecordedUsers(r.Context())
	out := make([]recordedUser, 0, len(users))
	for _, u := range users {
		out = append(out, recordedUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type userReportResponse struct {
	Window string `json:"window"`
	analytics.UserProfile
}

func (s *Server) userReport(w http.ResponseWriter, r *http.Request) {
	days := defaultReportDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeFailure(w, http.StatusBadRequest, reasonInvalidDays)
			return
		}
		days = n
	}
	window := analytics.WindowOfDays(days)
	records := s.deps.Store.QueryRecords(r.Context(), repository.RecordFilter{
		UserID: chi.URLParam(r, "userID"),
		Since:  window.Start(s.now()),
	})
	writeJSON(w, http.StatusOK, userReportResponse{
		Window:      window.Label,
		UserProfile: analytics.Profile(records, s.deps.Location),
	})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	records := s.deps.Store.QueryRecords(r.Context(), repository.RecordFilter{})
	writeJSON(w, http.StatusOK, analytics.Summarize(records, s.deps.Location))
}

func (s *Server) heatmap(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	records := s.deps.Store.QueryHeatmapRecords(r.Context(), analytics.HeatmapSince(now, s.deps.Location))
	writeJSON(w, http.StatusOK, analytics.Heatmap(records, now, s.deps.Location))
}

type focusWindow struct {
	Window string `json:"window"`
	analytics.FocusResult
}

func (s *Server) focus(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	all := s.allTimeRecords(r)
	out := make([]focusWindow, 0, len(analytics.StandardWindows))
	for _, window := range analytics.StandardWindows {
		records := analytics.FilterSince(all, window.Start(now))
		out = append(out, focusWindow{Window: window.Label, FocusResult: analytics.Focus(records, s.deps.Location)})
	}
	writeJSON(w, http.StatusOK, out)
}

type paretoWindow struct {
	Window string `json:"window"`
	analytics.ParetoResult
}

func (s *Server) pareto(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	all := s.allTimeRecords(r)
	out := make([]paretoWindow, 0, len(analytics.StandardWindows))
	for _, window := range analytics.StandardWindows {
		records := analytics.FilterSince(all, window.Start(now))
		out = append(out, paretoWindow{Window: window.Label, ParetoResult: analytics.Pareto(records)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) allTimeRecords(r *http.Request) []repository.SessionRecord {
	return s.deps.Store.QueryRecords(r.Context(), repository.RecordFilter{Since: analytics.AllTimeStart})
}

func (s *Server) now() time.Time {
	return s.deps.Clock.Now().In(s.deps.Location)
}
