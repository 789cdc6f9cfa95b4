package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/exam-service/internal/repositories"
	"github.com/SAP-F-2025/exam-service/internal/utils"
)

const exportHistoryLimit = 1000

type exportService struct {
	repo   repositories.Repository
	logger utils.Logger
}

func NewExportService(repo repositories.Repository, logger utils.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ExportHistory renders the user's attempt history as an Excel workbook and
// returns the file bytes with a suggested filename.
func (s *exportService) ExportHistory(ctx context.Context, userID string) ([]byte, string, error) {
	attempts, _, err := s.repo.Attempt().ListByUser(ctx, userID, repositories.AttemptFilters{
		Limit:     exportHistoryLimit,
		SortBy:    "started_at",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to load attempt history: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Attempt History"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Attempt ID", "Exam", "Status", "Score", "Percentage", "Passed",
		"Correct", "Incorrect", "Skipped", "Total Questions",
		"Started At", "Completed At", "Duration (s)",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, "", fmt.Errorf("failed to write header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", endCell, headerStyle)
	}

	for i, attempt := range attempts {
		row := i + 2
		passed := "No"
		if attempt.Passed {
			passed = "Yes"
		}
		completedAt := ""
		if attempt.CompletedAt != nil {
			completedAt = attempt.CompletedAt.Format(time.RFC3339)
		}
		values := []interface{}{
			attempt.ID,
			attempt.Template.Title,
			string(attempt.Status),
			attempt.Score,
			attempt.Percentage,
			passed,
			attempt.CorrectCount,
			attempt.IncorrectCount,
			attempt.SkippedCount,
			attempt.TotalQuestions,
			attempt.StartedAt.Format(time.RFC3339),
			completedAt,
			ElapsedSeconds(attempt.StartedAt, attempt.CompletedAt),
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, "", fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "M", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize workbook: %w", err)
	}

	filename := fmt.Sprintf("attempt_history_%s.xlsx", time.Now().Format("20060102_150405"))
	s.logger.Info("exported attempt history", "user_id", userID, "attempts", len(attempts))
	return buf.Bytes(), filename, nil
}
