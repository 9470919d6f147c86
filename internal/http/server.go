package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seguraabc/asistencia25/internal/auth"
	"github.com/seguraabc/asistencia25/internal/calendar"
	"github.com/seguraabc/asistencia25/internal/config"
	"github.com/seguraabc/asistencia25/internal/dates"
	"github.com/seguraabc/asistencia25/internal/model"
	"github.com/seguraabc/asistencia25/internal/report"
	"github.com/seguraabc/asistencia25/internal/repository"
	"github.com/seguraabc/asistencia25/internal/stats"
)

var logger = loggo.GetLogger("rollbook.http")

const maxRosterSize = 10 << 20

// SessionRecorder keeps the identity of an authenticated caller for later
// anonymous calls until Forget is called.
type SessionRecorder interface {
	Remember(ctx context.Context, claims *auth.Claims) error
	Forget(ctx context.Context) error
}

type Seeder interface {
	EnsureSeeded(ctx context.Context, ownerID string)
}

type Server struct {
	cfg      config.Config
	courses  *repository.CourseRepository
	sessions SessionRecorder
	seeder   Seeder
	now      func() time.Time
}

// NewServer wires the HTTP surface. seeder may be nil to disable example
// data.
func NewServer(cfg config.Config, courses *repository.CourseRepository, sessions SessionRecorder, seeder Seeder) *Server {
	return &Server{
		cfg:      cfg,
		courses:  courses,
		sessions: sessions,
		seeder:   seeder,
		now:      time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Delete("/session", s.handleLogout)

		r.Get("/courses", s.handleListCourses)
		r.Post("/courses", s.handleCreateCourse)
		r.Route("/courses/{courseId}", func(r chi.Router) {
			r.Get("/", s.handleGetCourse)
			r.Put("/", s.handleUpdateCourse)
			r.Delete("/", s.handleDeleteCourse)
			r.Get("/summary", s.handleCourseSummary)
			r.Get("/report.csv", s.handleReport(report.ExtCSV))
			r.Get("/report.xlsx", s.handleReport(report.ExtXLSX))

			r.Post("/students", s.handleAddStudents)
			r.Post("/students/import", s.handleImportStudents)
			r.Delete("/students/{studentId}", s.handleRemoveStudent)
			r.Put("/students/{studentId}/attendance/{date}", s.handleUpdateAttendance)
			r.Post("/students/{studentId}/grades", s.handleAddGrade)
			r.Put("/students/{studentId}/grades/{gradeId}", s.handleUpdateGrade)
			r.Delete("/students/{studentId}/grades/{gradeId}", s.handleRemoveGrade)
			r.Post("/grades", s.handleAddGradeToAll)

			r.Post("/dates", s.handleAddDate)
			r.Post("/dates/generate", s.handleGenerateDates)
			r.Delete("/dates/{date}", s.handleRemoveDate)
			r.Post("/dates/{date}/cancel", s.handleCancelClass)
		})
	})

	return r
}

// Auth

// authMiddleware accepts anonymous calls. A bearer token, when present, must
// be valid; its owner is remembered and seeded before the handler runs.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := auth.WithClaims(r.Context(), claims)
		if err := s.sessions.Remember(ctx, claims); err != nil {
			logger.Warningf("storing session for %s: %v", claims.UserID, err)
		}
		if s.seeder != nil {
			s.seeder.EnsureSeeded(ctx, claims.UserID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleLogout drops the stored session so anonymous calls stop resolving to
// its owner.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Forget(r.Context()); err != nil {
		logger.Errorf("clearing stored session: %v", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Models

type courseRequest struct {
	Name string `json:"name"`
}

type studentsRequest struct {
	Name  string   `json:"name"`
	Names []string `json:"names"`
}

type studentsResponse struct {
	Students []model.Student `json:"students"`
}

type attendanceRequest struct {
	Status string `json:"status"`
}

type gradeRequest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type dateRequest struct {
	Date string `json:"date"`
}

type generateDatesRequest struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Weekdays []int  `json:"weekdays"`
}

type generateDatesResponse struct {
	Added int      `json:"added"`
	Dates []string `json:"dates"`
}

type summaryResponse struct {
	Course   model.CourseSummary    `json:"course"`
	Dates    []string               `json:"dates"`
	Students []stats.StudentSummary `json:"students"`
}

// Courses

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.courses.ListCourses(r.Context()))
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	course, err := s.courses.CreateCourse(r.Context(), model.Course{Name: req.Name})
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.courses.GetCourse(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	var course model.Course
	if err := decodeJSON(r, &course); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	course.ID = chi.URLParam(r, "courseId")
	if err := s.courses.UpdateCourse(r.Context(), course); err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := s.courses.DeleteCourse(r.Context(), chi.URLParam(r, "courseId")); err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCourseSummary(w http.ResponseWriter, r *http.Request) {
	course, err := s.courses.GetCourse(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Course:   course.Summary(),
		Dates:    course.Dates,
		Students: stats.Summarize(course),
	})
}

func (s *Server) handleReport(ext string) http.HandlerFunc {
	render, contentType := report.WriteCSV, "text/csv; charset=utf-8"
	if ext == report.ExtXLSX {
		render, contentType = report.WriteXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		course, err := s.courses.GetCourse(r.Context(), chi.URLParam(r, "courseId"))
		if err != nil {
			writeRepositoryError(w, err)
			return
		}
		var buf bytes.Buffer
		if err := render(&buf, course); err != nil {
			logger.Errorf("rendering %s report for %s: %v", ext, course.ID, err)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		disposition := mime.FormatMediaType("attachment", map[string]string{
			"filename": report.FileName(course, s.now(), ext),
		})
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", disposition)
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

// Students

func (s *Server) handleAddStudents(w http.ResponseWriter, r *http.Request) {
	var req studentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	names := req.Names
	if req.Name != "" {
		names = append([]string{req.Name}, names...)
	}
	added, err := s.courses.AddStudents(r.Context(), chi.URLParam(r, "courseId"), names)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, studentsResponse{Students: added})
}

// handleImportStudents reads a roster workbook from the "file" form field,
// or from the raw body when the request is not multipart.
func (s *Server) handleImportStudents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRosterSize)
	var source io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file")
			return
		}
		defer file.Close()
		source = file
	}
	names, err := report.ReadRoster(source)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_roster")
		return
	}
	added, err := s.courses.AddStudents(r.Context(), chi.URLParam(r, "courseId"), names)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, studentsResponse{Students: added})
}

func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	err := s.courses.RemoveStudent(r.Context(), chi.URLParam(r, "courseId"), chi.URLParam(r, "studentId"))
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	err := s.courses.UpdateAttendance(r.Context(),
		chi.URLParam(r, "courseId"),
		chi.URLParam(r, "studentId"),
		chi.URLParam(r, "date"),
		model.AttendanceStatus(req.Status),
	)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Grades

func (s *Server) handleAddGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	grade, err := s.courses.AddGrade(r.Context(),
		chi.URLParam(r, "courseId"),
		chi.URLParam(r, "studentId"),
		model.Grade{Name: req.Name, Value: req.Value},
	)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grade)
}

func (s *Server) handleUpdateGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	err := s.courses.UpdateGrade(r.Context(),
		chi.URLParam(r, "courseId"),
		chi.URLParam(r, "studentId"),
		model.Grade{ID: chi.URLParam(r, "gradeId"), Name: req.Name, Value: req.Value},
	)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveGrade(w http.ResponseWriter, r *http.Request) {
	err := s.courses.RemoveGrade(r.Context(),
		chi.URLParam(r, "courseId"),
		chi.URLParam(r, "studentId"),
		chi.URLParam(r, "gradeId"),
	)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddGradeToAll(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.courses.AddGradeToAll(r.Context(), chi.URLParam(r, "courseId"), req.Name, req.Value); err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dates

func (s *Server) handleAddDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.courses.AddDate(r.Context(), chi.URLParam(r, "courseId"), req.Date); err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerateDates(w http.ResponseWriter, r *http.Request) {
	var req generateDatesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	start, err := dates.Parse(req.Start, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	end, err := dates.Parse(req.End, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	weekdays, err := calendar.ParseWeekdays(req.Weekdays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_weekday")
		return
	}
	generated, err := calendar.Generate(start, end, weekdays)
	switch {
	case errors.Is(err, calendar.ErrEmptySelection):
		writeError(w, http.StatusBadRequest, "empty_selection")
		return
	case errors.Is(err, calendar.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	case errors.Is(err, calendar.ErrNoMatchingDays):
		writeError(w, http.StatusBadRequest, "no_matching_days")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	added, err := s.courses.AddDates(r.Context(), chi.URLParam(r, "courseId"), generated)
	if err != nil {
		writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateDatesResponse{Added: added, Dates: generated})
}

func (s *Server) handleRemoveDate(w http.ResponseWriter, r *http.Request) {
	if err := s.courses.RemoveDate(r.Context(), chi.URLParam(r, "courseId"), chi.URLParam(r, "date")); err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelClass(w http.ResponseWriter, r *http.Request) {
	if err := s.courses.CancelClass(r.Context(), chi.URLParam(r, "courseId"), chi.URLParam(r, "date")); err != nil {
		writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Utilities

func writeRepositoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, repository.ErrDateExists):
		writeError(w, http.StatusConflict, "date_exists")
	case errors.Is(err, repository.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date")
	case errors.Is(err, repository.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name")
	case errors.Is(err, repository.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status")
	case errors.Is(err, repository.ErrPersistFailed):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
	default:
		logger.Errorf("unexpected repository error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
