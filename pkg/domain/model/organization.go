package model

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Credentials is a Google service account key in JSON form. Empty means
// application default credentials.
type Credentials string

// LogValue keeps key material out of logs
func (c Credentials) LogValue() slog.Value {
	if c == "" {
		return slog.StringValue("")
	}
	return slog.StringValue("[REDACTED]")
}

// Document locates an organization's ledger spreadsheet
type Document struct {
	ID          string      `json:"id" firestore:"id"`
	URL         string      `json:"url" firestore:"url"`
	Credentials Credentials `json:"-" firestore:"credentials" masq:"secret"`
}

// Organization is a Slack team that completed ledger setup
type Organization struct {
	TeamID    string    `firestore:"team_id"`
	Document  Document  `firestore:"document"`
	CreatedBy string    `firestore:"created_by"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// HasConfig reports whether the organization can write to a ledger
func (o *Organization) HasConfig() bool {
	return o != nil && o.TeamID != "" && o.Document.ID != ""
}

// Validate checks required fields
func (o *Organization) Validate() error {
	if o.TeamID == "" {
		return goerr.New("team ID is required")
	}
	if o.Document.ID == "" {
		return goerr.New("document ID is required", goerr.V(TeamIDKey, o.TeamID))
	}
	return nil
}

var spreadsheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
var spreadsheetIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)

// ParseDocumentRef accepts a spreadsheet URL or a bare spreadsheet ID
func ParseDocumentRef(ref string) (Document, error) {
	ref = strings.Trim(strings.TrimSpace(ref), "<>")
	if m := spreadsheetURLPattern.FindStringSubmatch(ref); m != nil {
		return Document{ID: m[1], URL: SpreadsheetURL(m[1])}, nil
	}
	if spreadsheetIDPattern.MatchString(ref) {
		return Document{ID: ref, URL: SpreadsheetURL(ref)}, nil
	}
	return Document{}, goerr.Wrap(ErrParse, "not a spreadsheet URL or ID", goerr.V(DocumentIDKey, ref))
}

// SpreadsheetURL returns the browser URL of a spreadsheet ID
func SpreadsheetURL(id string) string {
	return "https://docs.google.com/spreadsheets/d/" + id + "/edit"
}
