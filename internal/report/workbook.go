package report

import (
	"strings"

	"jonglog-service/internal/engine"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSettlement = "精算"
	sheetTransfers  = "送金"
	sheetMatches    = "対局"
	sheetExpenses   = "経費"
)

// SessionSheet is everything the workbook export needs about a session.
type SessionSheet struct {
	Title      string
	Players    []string
	Rate       float64
	Matches    [][]engine.Outcome
	Expenses   []engine.Expense
	Settlement *engine.Settlement
}

// Workbook renders a session's settlement, transfers, matches and expenses
// as an xlsx file.
func Workbook(s SessionSheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSettlement); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetTransfers, sheetMatches, sheetExpenses} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	rows := [][]interface{}{
		{s.Title},
		{"レート", s.Rate},
		{},
		{"名前", "スコア", "対局収支", "立替", "負担", "最終"},
	}
	if s.Settlement != nil {
		for _, l := range s.Settlement.Lines {
			rows = append(rows, []interface{}{l.Name, l.GameScore, l.GameBalance, l.Paid, l.Share, l.Final})
		}
	}
	if err := writeRows(f, sheetSettlement, rows); err != nil {
		return nil, err
	}

	rows = [][]interface{}{{"支払者", "受取者", "金額"}}
	if s.Settlement != nil {
		for _, t := range s.Settlement.Transfers {
			rows = append(rows, []interface{}{t.From, t.To, t.Amount})
		}
	}
	if err := writeRows(f, sheetTransfers, rows); err != nil {
		return nil, err
	}

	header := []interface{}{"#"}
	pos := make(map[string]int, len(s.Players))
	for i, p := range s.Players {
		header = append(header, p)
		pos[p] = i
	}
	rows = [][]interface{}{header}
	for n, m := range s.Matches {
		row := make([]interface{}, len(s.Players)+1)
		row[0] = n + 1
		for _, o := range m {
			if i, ok := pos[o.Name]; ok {
				row[i+1] = o.FinalScore
			}
		}
		rows = append(rows, row)
	}
	if err := writeRows(f, sheetMatches, rows); err != nil {
		return nil, err
	}

	rows = [][]interface{}{{"内容", "支払者", "金額", "対象"}}
	for _, e := range s.Expenses {
		rows = append(rows, []interface{}{e.Note, e.Payer, e.Amount, strings.Join(e.Targets, ", ")})
	}
	if err := writeRows(f, sheetExpenses, rows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
