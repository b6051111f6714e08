package export

import (
	"fmt"
	"time"

	"github.com/usernameweb/acctdash/internal/query"
	"github.com/xuri/excelize/v2"
)

// SheetName is the single worksheet in every XLSX export.
const SheetName = "Accounts"

// Profile holds the constants written into the browser-profile import
// columns of the XLSX schema.
type Profile struct {
	Platform     string // platform column, e.g. "shopee.co.id"
	CookieDomain string // substring a cookie domain must contain to be kept
	CountryCode  string
	ProxyType    string
	IPChecker    string
	FilePrefix   string
}

// DefaultProfile targets the Shopee Indonesia storefront.
var DefaultProfile = Profile{
	Platform:     "shopee.co.id",
	CookieDomain: "shopee",
	CountryCode:  "id",
	ProxyType:    "noproxy",
	IPChecker:    "ip2location",
	FilePrefix:   "shopee_accounts",
}

// Record is one account prepared for serialization.
type Record struct {
	Account query.Account
	Cookie  string // normalized cookie payload
}

type column struct {
	header string
	width  float64
	value  func(p Profile, r Record) string
}

func constant(s string) func(Profile, Record) string {
	return func(Profile, Record) string { return s }
}

var (
	colAccID       = column{"acc_id", 10, constant("")}
	colIDs         = column{"ids", 10, constant("")}
	colGroup       = column{"group", 15, func(_ Profile, r Record) string { return r.Account.Group }}
	colName        = column{"name", 20, func(_ Profile, r Record) string { return r.Account.Username }}
	colRemark      = column{"remark", 15, func(_ Profile, r Record) string { return r.Account.Tag }}
	colPlatform    = column{"platform", 15, func(p Profile, _ Record) string { return p.Platform }}
	colUsername    = column{"username", 20, func(_ Profile, r Record) string { return r.Account.Username }}
	colPassword    = column{"password", 12, constant("")}
	colFakey       = column{"fakey", 10, constant("")}
	colCookie      = column{"cookie", 40, func(_ Profile, r Record) string { return r.Cookie }}
	colProxyType   = column{"proxytype", 12, func(p Profile, _ Record) string { return p.ProxyType }}
	colIPChecker   = column{"ipchecker", 12, func(p Profile, _ Record) string { return p.IPChecker }}
	colProxy       = column{"proxy", 15, constant("")}
	colProxyURL    = column{"proxyurl", 15, constant("")}
	colProxyID     = column{"proxyid", 10, constant("")}
	colIP          = column{"ip", 15, constant("")}
	colCountryCode = column{"countrycode", 12, func(p Profile, _ Record) string { return p.CountryCode }}
	colUA          = column{"ua", 30, func(_ Profile, r Record) string { return r.Account.UserAgent }}
)

// fullColumns is the 18-column browser-profile import schema.
var fullColumns = []column{
	colAccID, colIDs, colGroup, colName, colRemark, colPlatform, colUsername,
	colPassword, colFakey, colCookie, colProxyType, colIPChecker, colProxy,
	colProxyURL, colProxyID, colIP, colCountryCode, colUA,
}

// simplifiedColumns is the fallback schema used when the full workbook
// cannot be serialized.
var simplifiedColumns = []column{
	colAccID, colIDs, colGroup, colName, colRemark, colPlatform, colUsername,
	colPassword, colCookie, colCountryCode, colUA,
}

// Headers returns the header row of the full or simplified schema.
func Headers(simplified bool) []string {
	cols := fullColumns
	if simplified {
		cols = simplifiedColumns
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.header
	}
	return out
}

// XLSXFilename returns the export name for the given instant, e.g.
// "shopee_accounts_2025-07-17T10-20-30.xlsx".
func XLSXFilename(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultProfile.FilePrefix
	}
	return fmt.Sprintf("%s_%s.xlsx", prefix, t.UTC().Format("2006-01-02T15-04-05"))
}

// EncodeXLSX serializes records with the full schema, falling back to the
// simplified schema if that fails. The second return value reports whether
// the fallback was used.
func EncodeXLSX(p Profile, records []Record) ([]byte, bool, error) {
	data, err := encodeWorkbook(p, fullColumns, records)
	if err == nil {
		return data, false, nil
	}
	data, fbErr := encodeWorkbook(p, simplifiedColumns, records)
	if fbErr != nil {
		return nil, true, fmt.Errorf("encode workbook: %w (fallback: %v)", err, fbErr)
	}
	return data, true, nil
}

// buildWorkbook is a seam for forcing the fallback in tests.
var buildWorkbook = func(p Profile, cols []column, records []Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.header
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = SanitizeCell(c.value(p, r))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for i, c := range cols {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetColWidth(SheetName, name, name, c.width); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("set width %s: %w", name, err)
		}
	}
	return f, nil
}

func encodeWorkbook(p Profile, cols []column, records []Record) ([]byte, error) {
	f, err := buildWorkbook(p, cols, records)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
