package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Ramsey-B/clover/pkg/models"
)

func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	right := make(map[int]bool, len(rightAligned))
	for _, col := range rightAligned {
		right[col] = true
	}
	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if right[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func summaryTable(run *models.BatchRun) string {
	rows := [][]string{
		{"saved", fmt.Sprint(run.Result.SavedCount)},
		{"exact duplicates", fmt.Sprint(run.Result.ExactDuplicateCount)},
		{"auto-merged", fmt.Sprint(run.Result.AutoMergedCount)},
		{"review required", fmt.Sprint(run.Result.ReviewRequiredCount)},
		{"invalid", fmt.Sprint(len(run.Errors))},
		{"pool size", fmt.Sprint(len(run.Pool))},
	}
	return renderTable([]string{"Outcome", "Count"}, rows, 1)
}

func conflictTable(conflicts []models.MergeConflict) string {
	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		rows = append(rows, []string{
			c.ID,
			c.Incoming.Title,
			c.Existing.Title,
			fmt.Sprintf("%.3f", c.Similarity.Score),
			strings.Join(c.Unresolved, ", "),
		})
	}
	return renderTable([]string{"Conflict", "Incoming", "Existing", "Score", "Unresolved"}, rows, 3)
}

func errorTable(errs []models.ItemError) string {
	rows := make([][]string, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, []string{fmt.Sprint(e.Index), e.RecordID, string(e.Kind), e.Message})
	}
	return renderTable([]string{"Index", "Record", "Kind", "Message"}, rows, 0)
}
