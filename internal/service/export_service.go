package service

import (
	"fmt"
	"strconv"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
	"github.com/noah-isme/assessment-workflow-api/pkg/export"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

// ExportService turns a submission's marks into rendered mark sheet
// artifacts. Rendering is synchronous; the job lifecycle around it
// lives in MarkSheetService.
type ExportService struct {
	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewExportService constructs the service.
func NewExportService() *ExportService {
	return &ExportService{
		csv: export.NewCSVExporter(),
		pdf: export.NewPDFExporter(),
	}
}

// BuildDataset lays out one row per student with a column per required
// component. Rows follow the mark listing order (registration number).
func (s *ExportService) BuildDataset(submission *models.Submission, marks []models.StudentMark) export.Dataset {
	specs := models.RequiredComponents(submission.Type)
	headers := []string{"Registration Number", "Student ID"}
	for _, spec := range specs {
		headers = append(headers, fmt.Sprintf("%s (/%.0f)", spec.Kind, spec.Max))
	}
	headers = append(headers, "Total", "Average", "Grade", "Remark")

	rows := make([]map[string]string, 0, len(marks))
	for _, mark := range marks {
		row := map[string]string{
			"Registration Number": mark.RegistrationNumber,
			"Student ID":          mark.StudentID,
			"Total":               formatScore(mark.Total),
			"Average":             formatScore(mark.Average),
			"Grade":               mark.Grade,
			"Remark":              mark.Remark,
		}
		for i, spec := range specs {
			header := headers[2+i]
			if score, ok := mark.Scores[spec.Kind]; ok {
				row[header] = formatScore(score)
			}
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// Render produces the artifact bytes for the requested format.
func (s *ExportService) Render(format models.MarkSheetFormat, data export.Dataset, title string) ([]byte, error) {
	switch format {
	case models.MarkSheetFormatCSV:
		payload, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "csv rendering failed")
		}
		return payload, nil
	case models.MarkSheetFormatPDF:
		payload, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "pdf rendering failed")
		}
		return payload, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported mark sheet format %q", format))
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
