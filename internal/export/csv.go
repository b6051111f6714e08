package export

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/query"
)

// CSVFilename is the name of every CSV export.
const CSVFilename = "accounts.csv"

// csvHeader is written unquoted.
var csvHeader = []string{"ID", "Username Shopee", "User Agent", "Email", "Group", "Tag", "Created", "Duration"}

// EncodeCSV renders the human-readable layout. Every text field is wrapped in
// double quotes with embedded quotes doubled; the numeric ID is left bare.
// Lines are separated by "\n" with no trailing newline.
func EncodeCSV(rows []query.Account, c *duration.Classifier) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(csvHeader, ","))
	for _, a := range rows {
		buf.WriteByte('\n')
		fields := []string{
			strconv.FormatInt(a.ID, 10),
			quoteCSV(a.Username),
			quoteCSV(a.UserAgent),
			quoteCSV(a.OwnerEmail),
			quoteCSV(a.Group),
			quoteCSV(a.Tag),
			quoteCSV(c.FormatDate(a.CreatedAt)),
			quoteCSV(c.Display(a.CreatedAt)),
		}
		buf.WriteString(strings.Join(fields, ","))
	}
	return buf.Bytes()
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
