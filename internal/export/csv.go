// Package export serializes the lead collection for spreadsheet tools.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadline/internal/domain"
)

// ErrNoLeads signals an export over an empty collection. It is a user-facing
// informational stop, not a failure: callers tell the user there is nothing
// to export and move on.
var ErrNoLeads = errors.New("no leads available to export")

var header = []string{"ID", "Name", "Email", "Company", "Status", "Value ($)", "Last Contacted", "Notes"}

// Leads renders the collection as CSV in collection order.
//
// The dialect is deliberately lossy and minimal: only commas inside the
// notes field are touched (replaced with a single space), nothing is quoted,
// and other fields pass through verbatim. Consumers must not assume RFC 4180.
func Leads(leads []domain.Lead) ([]byte, error) {
	if len(leads) == 0 {
		return nil, ErrNoLeads
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(header, ","))
	for _, l := range leads {
		buf.WriteByte('\n')
		row := []string{
			l.ID,
			l.Name,
			l.Email,
			l.Company,
			string(l.Status),
			strconv.FormatFloat(l.Value, 'f', -1, 64),
			l.LastContacted,
			strings.ReplaceAll(l.Notes, ",", " "),
		}
		buf.WriteString(strings.Join(row, ","))
	}
	return buf.Bytes(), nil
}

// Filename names the downloaded document after the product and the export
// date.
func Filename(t time.Time) string {
	return fmt.Sprintf("leadline_leads_%s.csv", t.UTC().Format("2006-01-02"))
}
