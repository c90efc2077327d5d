// Package export writes the registry and audited claims to spreadsheets.
package export

import (
	"io"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/registry"
	"github.com/sells-group/audit-engine/pkg/youtube"
)

// Sheet names in an exported workbook.
const (
	SheetLeaderboard = "Leaderboard"
	SheetClaims      = "Claims"
)

var (
	leaderboardHeader = []string{
		"Handle", "Name", "Niche", "Claims", "Last Audited", "Status",
		"Avg Accuracy", "Predictions", "Unverifiable",
	}
	claimsHeader = []string{
		"Creator", "Video", "Video Date", "Timestamp", "Link", "Claim",
		"Asset", "Status", "Score", "Explanation",
	}
)

// Workbook builds a two-sheet workbook from leaderboard rows and claims.
func Workbook(rows []registry.Row, claims []model.Claim) (*xlsx.File, error) {
	f := xlsx.NewFile()

	lb, err := f.AddSheet(SheetLeaderboard)
	if err != nil {
		return nil, eris.Wrap(err, "export: add leaderboard sheet")
	}
	addRow(lb, leaderboardHeader)
	for _, r := range rows {
		cells := []string{r.Handle, r.Name, r.Niche, "", "", "", "", "", ""}
		if r.Summary != nil {
			cells[3] = strconv.Itoa(r.Summary.Count)
			cells[4] = r.Summary.LastAudited
			cells[5] = r.Summary.Status
		}
		if r.Stats != nil {
			cells[6] = strconv.FormatFloat(r.Stats.AvgAccuracy, 'f', 2, 64)
			cells[7] = strconv.Itoa(r.Stats.TotalPredictions)
			cells[8] = strconv.Itoa(r.Stats.UnverifiableCount)
		}
		addRow(lb, cells)
	}

	cs, err := f.AddSheet(SheetClaims)
	if err != nil {
		return nil, eris.Wrap(err, "export: add claims sheet")
	}
	addRow(cs, claimsHeader)
	for _, c := range claims {
		addRow(cs, []string{
			model.AtHandle(c.CreatorHandle),
			c.VideoTitle,
			c.VideoDate,
			c.Timestamp,
			youtube.DeepLink(c.VideoURL, c.Timestamp),
			c.StructuredClaim,
			c.Asset,
			string(c.Status),
			strconv.FormatFloat(c.Score, 'f', 2, 64),
			c.Explanation,
		})
	}

	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, rows []registry.Row, claims []model.Claim) error {
	f, err := Workbook(rows, claims)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// Save writes the workbook to path.
func Save(path string, rows []registry.Row, claims []model.Claim) error {
	f, err := Workbook(rows, claims)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Save(path), "export: save workbook")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadSheet reads all rows of the named sheet from an xlsx payload.
func ReadSheet(data []byte, name string) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// SeededClaims flattens every seeded record into one claim list, sorted by
// handle.
func SeededClaims(ds registry.Dataset) []model.Claim {
	handles := make([]string, 0, len(ds))
	for h := range ds {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	var out []model.Claim
	for _, h := range handles {
		out = append(out, ds[h].Claims...)
	}
	return out
}
