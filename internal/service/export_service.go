package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/pkg/export"
)

// Export formats supported for archives.
const (
	ExportFormatPDF = "pdf"
	ExportFormatCSV = "csv"
)

type csvRenderer interface {
	RenderReport(report export.Report) ([]byte, error)
}

type pdfRenderer interface {
	Render(report export.Report) ([]byte, error)
}

var responseHeaders = []string{"#", "Question", "Type", "Answer", "Score", "Critical", "Finding", "Notes"}

var findingHeaders = []string{"Item", "Severity", "Status", "Description", "Identified"}

var actionHeaders = []string{"Action", "Assignee", "Due", "Status", "Completed"}

// ArchiveExporter renders frozen archives into downloadable documents.
type ArchiveExporter struct {
	csv csvRenderer
	pdf pdfRenderer
}

// NewArchiveExporter constructs an exporter, falling back to the default renderers.
func NewArchiveExporter(csv csvRenderer, pdf pdfRenderer) *ArchiveExporter {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ArchiveExporter{csv: csv, pdf: pdf}
}

// Render returns the archive in the requested format together with its filename and content type.
func (e *ArchiveExporter) Render(archive *models.AuditArchive, format string) (content []byte, filename, contentType string, err error) {
	base := fmt.Sprintf("audit-%s-%s", archive.CompletedDate.Format("20060102"), shortID(archive.ID))
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", ExportFormatPDF:
		content, err = e.pdf.Render(archiveReport(archive))
		return content, base + ".pdf", "application/pdf", err
	case ExportFormatCSV:
		content, err = e.csv.RenderReport(archiveReport(archive))
		return content, base + ".csv", "text/csv", err
	default:
		return nil, "", "", fmt.Errorf("unsupported export format %q", format)
	}
}

func archiveReport(archive *models.AuditArchive) export.Report {
	return export.Report{
		Title: fmt.Sprintf("%s - %s", archive.TemplateName, archive.RestaurantName),
		Summary: []export.KeyValue{
			{Key: "Category", Value: string(archive.TemplateCategory)},
			{Key: "Inspector", Value: archive.InspectorName},
			{Key: "Scheduled", Value: archive.ScheduledDate.Format("2006-01-02")},
			{Key: "Completed", Value: archive.CompletedDate.Format("2006-01-02")},
			{Key: "Final status", Value: string(archive.FinalStatus)},
			{Key: "Score", Value: fmt.Sprintf("%s / %s (%s%%)", formatNumber(archive.TotalScore), formatNumber(archive.MaxPossibleScore), formatNumber(archive.ScorePercentage))},
		},
		Sections: []export.Section{
			{Title: "Responses", Dataset: responseDataset(archive)},
			{Title: "Non-conformities", Dataset: findingDataset(archive)},
			{Title: "Corrective actions", Dataset: actionDataset(archive)},
		},
	}
}

func responseDataset(archive *models.AuditArchive) export.Dataset {
	findings := make(map[string]models.ArchivedNonConformity, len(archive.NonConformitiesData))
	for _, nc := range archive.NonConformitiesData {
		findings[nc.ItemID] = nc
	}
	rows := make([]map[string]string, 0, len(archive.ResponsesData))
	for _, resp := range archive.ResponsesData {
		row := map[string]string{
			"#":        strconv.Itoa(resp.Order),
			"Question": resp.Question,
			"Type":     string(resp.Type),
			"Answer":   resp.Value,
			"Critical": yesNo(resp.Critical),
		}
		if !resp.Responded {
			row["Answer"] = "-"
		}
		if resp.Score != nil {
			row["Score"] = formatNumber(*resp.Score)
			if resp.MaxScore != nil {
				row["Score"] += "/" + strconv.Itoa(*resp.MaxScore)
			}
		}
		if nc, ok := findings[resp.ItemID]; ok {
			row["Finding"] = string(nc.Severity)
		}
		if resp.Notes != nil {
			row["Notes"] = *resp.Notes
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: responseHeaders, Rows: rows}
}

func findingDataset(archive *models.AuditArchive) export.Dataset {
	questions := make(map[string]string, len(archive.ResponsesData))
	for _, resp := range archive.ResponsesData {
		questions[resp.ItemID] = resp.Question
	}
	rows := make([]map[string]string, 0, len(archive.NonConformitiesData))
	for _, nc := range archive.NonConformitiesData {
		rows = append(rows, map[string]string{
			"Item":        questions[nc.ItemID],
			"Severity":    string(nc.Severity),
			"Status":      string(nc.Status),
			"Description": nc.Description,
			"Identified":  nc.IdentifiedDate.Format("2006-01-02"),
		})
	}
	return export.Dataset{Headers: findingHeaders, Rows: rows}
}

func actionDataset(archive *models.AuditArchive) export.Dataset {
	rows := make([]map[string]string, 0, len(archive.CorrectiveActionsData))
	for _, action := range archive.CorrectiveActionsData {
		row := map[string]string{
			"Action":   action.ActionDescription,
			"Assignee": action.AssigneeName,
			"Due":      action.DueDate.Format("2006-01-02"),
			"Status":   string(action.Status),
		}
		if action.CompletionDate != nil {
			row["Completed"] = action.CompletionDate.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: actionHeaders, Rows: rows}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
