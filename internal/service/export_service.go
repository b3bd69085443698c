package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/export"
)

type reviewSource interface {
	Get(ctx context.Context, actor Actor, postingID string) (*dto.ReviewResponse, error)
}

var rosterHeaders = []string{"Shift", "Volunteer", "Email", "Phone", "Headcount", "Status", "Note"}

// ExportResult is a rendered roster ready for download.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders a posting's review table as a downloadable roster.
type ExportService struct {
	reviews   reviewSource
	renderers map[string]export.Renderer
	logger    *zap.Logger
	loc       *time.Location
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(reviews reviewSource, logger *zap.Logger, loc *time.Location) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{
		reviews: reviews,
		renderers: map[string]export.Renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		logger: logger,
		loc:    loc,
	}
}

// Roster exports the review of postingID in format (csv by default). The
// roster shows exactly what actor would see on the review screen.
func (s *ExportService) Roster(ctx context.Context, actor Actor, postingID string, query dto.ExportQuery) (*ExportResult, error) {
	format := strings.ToLower(query.Format)
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", query.Format))
	}

	review, err := s.reviews.Get(ctx, actor, postingID)
	if err != nil {
		return nil, err
	}

	roster := s.buildRoster(review)
	data, err := renderer.Render(roster)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render roster")
	}

	s.logger.Debug("roster exported",
		zap.String("posting_id", postingID),
		zap.String("format", format),
		zap.Int("rows", roster.RowCount()),
	)
	return &ExportResult{
		Filename:    fmt.Sprintf("%s.%s", rosterFilename(review.Title, postingID), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
		Rows:        roster.RowCount(),
	}, nil
}

func (s *ExportService) buildRoster(review *dto.ReviewResponse) export.Roster {
	roster := export.Roster{
		Title: review.Title,
		Subtitle: fmt.Sprintf("%s | %d volunteers needed per shift | %d signed up",
			review.DisplayStatus, review.NumVolunteers, review.Totals.Volunteers),
		Headers:  rosterHeaders,
		Sections: make([]export.Section, 0, len(review.Days)),
	}
	for _, day := range review.Days {
		section := export.Section{Heading: day.Date.In(s.loc).Format("Mon Jan 2, 2006")}
		for _, shift := range day.Shifts {
			window := fmt.Sprintf("%s-%s", shift.Start.In(s.loc).Format("15:04"), shift.End.In(s.loc).Format("15:04"))
			if len(shift.Signups) == 0 {
				section.Rows = append(section.Rows, []string{window, "", "", "", "", "", ""})
				continue
			}
			for _, signup := range shift.Signups {
				section.Rows = append(section.Rows, rosterRow(window, signup))
			}
		}
		roster.Sections = append(roster.Sections, section)
	}
	return roster
}

func rosterRow(window string, signup scheduling.ReviewSignup) []string {
	return []string{
		window,
		signup.VolunteerName,
		signup.Email,
		signup.PhoneNumber,
		strconv.Itoa(signup.NumVolunteers),
		string(signup.Status),
		signup.Note,
	}
}

func rosterFilename(title, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if name == "" {
		name = fallback
	}
	return "roster-" + name
}
