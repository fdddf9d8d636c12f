package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/export"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
)

type datasetRenderer interface {
	Render(format export.Format, data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService turns registration and order listings into CSV, XLSX or PDF files.
type ExportService struct {
	renderer datasetRenderer
	location *time.Location
	logger   *zap.Logger
}

// NewExportService constructs an ExportService. A nil location means UTC.
func NewExportService(renderer datasetRenderer, location *time.Location, logger *zap.Logger) *ExportService {
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{renderer: renderer, location: location, logger: logger}
}

// Registrations renders an event's attendee list.
func (s *ExportService) Registrations(event *models.Event, rows []models.RegistrationDetail, rawFormat string) (*ExportFile, error) {
	data := export.Dataset{
		Title:   "Registrations - " + event.Title,
		Headers: []string{"#", "Name", "Email", "Registered At", "Registration ID"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for i, r := range rows {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(i + 1),
			r.AttendeeName,
			r.AttendeeEmail,
			r.RegisteredAt.In(s.location).Format("2006-01-02 15:04"),
			r.ID,
		})
	}
	return s.render("registrations-"+event.Title, data, rawFormat)
}

// Orders renders a day's canteen orders.
func (s *ExportService) Orders(day time.Time, orders []models.CanteenOrder, rawFormat string) (*ExportFile, error) {
	date := day.In(s.location).Format("2006-01-02")
	data := export.Dataset{
		Title:   "Canteen orders " + date,
		Headers: []string{"Order Number", "Student", "Slot", "Items", "Total", "Status", "Placed At"},
		Rows:    make([][]string, 0, len(orders)),
	}
	for _, o := range orders {
		items := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, fmt.Sprintf("%s x%d", it.Name, it.Quantity))
		}
		student := o.StudentName
		if student == "" {
			student = o.StudentID
		}
		data.Rows = append(data.Rows, []string{
			o.OrderNumber,
			student,
			o.SlotTime,
			strings.Join(items, ", "),
			strconv.FormatFloat(o.TotalPrice, 'f', 2, 64),
			string(o.Status),
			o.CreatedAt.In(s.location).Format("15:04"),
		})
	}
	return s.render("orders-"+date, data, rawFormat)
}

func (s *ExportService) render(name string, data export.Dataset, rawFormat string) (*ExportFile, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	body, err := s.renderer.Render(format, data)
	if err != nil {
		s.logger.Error("render export failed", zap.String("name", name), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    slugify(name) + "." + string(format),
		ContentType: format.ContentType(),
		Data:        body,
	}, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		return "export"
	}
	return slug
}
