// Package portal talks to the medical portal REST API that owns appointments
// and patients.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medportal/timetable/libs/httpx"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StatusError is a non-2xx answer the client has no sentinel for.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token is used when the request context carries no caller token.
	Token  string
	Logger *slog.Logger
}

type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	logger *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid portal base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		token:  cfg.Token,
		logger: cfg.Logger,
	}, nil
}

type bearerKey struct{}

// WithBearer makes calls under ctx authenticate as the caller.
func WithBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerFrom(ctx context.Context) string {
	v, _ := ctx.Value(bearerKey{}).(string)
	return v
}

// appointmentDTO is the portal's wire shape; the patient id field keeps the
// portal's spelling.
type appointmentDTO struct {
	ID        string `json:"id,omitempty"`
	PatientID string `json:"pacientId"`
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`
}

type recordsEnvelope[T any] struct {
	Records []T `json:"records"`
}

type patientDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (c *Client) AppointmentsByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	return c.listAppointments(ctx, "/Appointments/GetAppointmentByDoctorId/"+url.PathEscape(doctorID))
}

func (c *Client) AppointmentsByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return c.listAppointments(ctx, "/Appointments/GetAppointmentByPacientId/"+url.PathEscape(patientID))
}

func (c *Client) listAppointments(ctx context.Context, path string) ([]model.Appointment, error) {
	var env recordsEnvelope[appointmentDTO]
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []model.Appointment{}, nil
		}
		return nil, err
	}
	// Records the grid cannot represent are skipped, not fatal to the list.
	out := make([]model.Appointment, 0, len(env.Records))
	for _, r := range env.Records {
		a, err := fromWire(r)
		if err != nil {
			c.logger.Warn("portal appointment skipped", "err", err, "appointment_id", r.ID, "path", path)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, req model.NewAppointment) (model.Appointment, error) {
	stamp, err := wireDate(req.Date, req.Time)
	if err != nil {
		return model.Appointment{}, err
	}
	body := appointmentDTO{PatientID: req.PatientID, DoctorID: req.DoctorID, Date: stamp}
	var created appointmentDTO
	if err := c.do(ctx, http.MethodPost, "/Appointments/CreateAppointment", body, &created); err != nil {
		return model.Appointment{}, err
	}
	appt := model.Appointment{
		ID:        created.ID,
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      week.Normalize(req.Date),
		Time:      req.Time,
	}
	return appt, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, appt model.Appointment) error {
	stamp, err := wireDate(appt.Date, appt.Time)
	if err != nil {
		return err
	}
	body := appointmentDTO{ID: appt.ID, PatientID: appt.PatientID, DoctorID: appt.DoctorID, Date: stamp}
	return c.do(ctx, http.MethodPut, "/Appointments/UpdateAppointment", body, nil)
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/Appointments/DeleteAppointment/"+url.PathEscape(id), nil, nil)
}

// PatientNames maps patient id to "First Last".
func (c *Client) PatientNames(ctx context.Context) (map[string]string, error) {
	var env recordsEnvelope[patientDTO]
	if err := c.do(ctx, http.MethodGet, "/Pacients/GetAllPacients", nil, &env); err != nil {
		return nil, err
	}
	names := make(map[string]string, len(env.Records))
	for _, p := range env.Records {
		names[p.ID] = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	return names, nil
}

// Ping reports whether the portal answers at all; any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String()+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := bearerFrom(ctx)
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpx.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return model.ErrSlotTaken
	case resp.StatusCode == http.StatusNotFound:
		return model.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("portal %s %s: decode: %w", method, path, err)
	}
	return nil
}

// fromWire splits the portal's "YYYY-MM-DDTHH:MM:SSZ" stamp into a calendar
// date and a time-of-day string.
func fromWire(r appointmentDTO) (model.Appointment, error) {
	datePart, timePart, _ := strings.Cut(r.Date, "T")
	d, err := week.ParseDate(datePart)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: bad date %q: %w", r.ID, r.Date, err)
	}
	return model.Appointment{
		ID:        r.ID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Date:      d,
		Time:      strings.TrimSuffix(timePart, "Z"),
	}, nil
}

func wireDate(date time.Time, clock string) (string, error) {
	minutes, err := timetable.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return week.FormatDate(date) + "T" + timetable.FormatClock(minutes) + ":00Z", nil
}
