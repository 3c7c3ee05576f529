/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bankrec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

// StatementImport tells which journal the imported lines belong to.
type StatementImport struct {
	CompanyID          string `json:"company_id" form:"company_id"`
	JournalID          string `json:"journal_id" form:"journal_id"`
	LiquidityAccountID string `json:"liquidity_account_id" form:"liquidity_account_id"`
	Currency           string `json:"currency" form:"currency"`
}

// ImportResult summarises a statement import. Rows that failed are reported and the others kept.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportStatementLines reads a bank statement export, CSV or JSON, and stores one statement line per
// row. The file type comes from the extension, or from the content when the extension is unknown.
func (s *BankRec) ImportStatementLines(ctx context.Context, imp StatementImport, reader io.Reader, filename string) (ImportResult, error) {
	ctx, span := tracer.Start(ctx, "ImportStatementLines")
	defer span.End()

	data, err := io.ReadAll(reader)
	if err != nil {
		return ImportResult{}, fmt.Errorf("error reading upload: %w", err)
	}
	fileType := detectFileType(data, filename)

	var lines []model.StatementLine
	var result ImportResult
	switch fileType {
	case "text/csv":
		lines, result.Errors, err = parseStatementCSV(bytes.NewReader(data))
	case "application/json":
		err = json.Unmarshal(data, &lines)
	default:
		return ImportResult{}, fmt.Errorf("unsupported file type: %s", fileType)
	}
	if err != nil {
		return ImportResult{}, err
	}

	for i, line := range lines {
		line.CompanyID = imp.CompanyID
		line.JournalID = imp.JournalID
		line.LiquidityAccountID = imp.LiquidityAccountID
		if line.Currency == "" {
			line.Currency = imp.Currency
		}
		if _, err := s.CreateStatementLine(ctx, line); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", i+1, err))
			continue
		}
		result.Imported++
		if i%1000 == 999 && ctx.Err() != nil {
			return result, ctx.Err()
		}
	}
	return result, nil
}

func detectFileType(data []byte, filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case "":
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return strings.TrimSpace(strings.Split(t, ";")[0])
		}
	}

	switch t := http.DetectContentType(data); {
	case strings.HasPrefix(t, "text/csv"):
		return "text/csv"
	case strings.HasPrefix(t, "text/plain"), t == "application/octet-stream":
		if json.Valid(data) {
			return "application/json"
		}
		if looksLikeCSV(data) {
			return "text/csv"
		}
		return "text/plain"
	default:
		return t
	}
}

// looksLikeCSV checks for at least two lines with the same number of comma separated fields.
func looksLikeCSV(data []byte) bool {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) < 2 {
		return false
	}
	fields := bytes.Count(lines[0], []byte(",")) + 1
	for _, line := range lines[1:] {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.Count(line, []byte(","))+1 != fields {
			return false
		}
	}
	return fields > 1
}

var requiredStatementColumns = []string{"date", "amount", "payment_ref"}

func parseStatementCSV(reader io.Reader) ([]model.StatementLine, []string, error) {
	csvReader := csv.NewReader(bufio.NewReader(reader))
	headers, err := csvReader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading CSV headers: %w", err)
	}
	columns, err := createColumnMap(headers)
	if err != nil {
		return nil, nil, err
	}

	var (
		lines []model.StatementLine
		errs  []string
	)
	rowNum := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		line, err := parseStatementRow(record, columns)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		lines = append(lines, line)
	}
	return lines, errs, nil
}

func createColumnMap(headers []string) (map[string]int, error) {
	columns := make(map[string]int, len(headers))
	for i, header := range headers {
		columns[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, col := range requiredStatementColumns {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("required column '%s' not found in CSV", col)
		}
	}
	return columns, nil
}

func parseStatementRow(record []string, columns map[string]int) (model.StatementLine, error) {
	field := func(name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	date, err := parseStatementDate(field("date"))
	if err != nil {
		return model.StatementLine{}, err
	}
	amount, err := decimal.NewFromString(field("amount"))
	if err != nil {
		return model.StatementLine{}, fmt.Errorf("invalid amount %q", field("amount"))
	}
	line := model.StatementLine{
		Date:            date,
		Amount:          amount,
		Currency:        field("currency"),
		ForeignCurrency: field("foreign_currency"),
		PaymentRef:      field("payment_ref"),
		Narration:       field("narration"),
		PartnerName:     field("partner_name"),
		AccountNumber:   field("account_number"),
	}
	if raw := field("amount_currency"); raw != "" {
		if line.AmountCurrency, err = decimal.NewFromString(raw); err != nil {
			return model.StatementLine{}, fmt.Errorf("invalid amount_currency %q", raw)
		}
	}
	return line, nil
}

func parseStatementDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
