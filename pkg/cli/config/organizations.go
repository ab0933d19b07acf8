package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

// OrganizationFile is the TOML seed of ledger bindings
type OrganizationFile struct {
	Organizations []OrganizationEntry `toml:"organization"`
}

// OrganizationEntry binds one Slack team to a spreadsheet
type OrganizationEntry struct {
	TeamID          string `toml:"team_id"`
	DocumentID      string `toml:"document_id"`
	DocumentURL     string `toml:"document_url"`
	CredentialsFile string `toml:"credentials_file"`
}

// Organizations holds the CLI flag of the seed file
type Organizations struct {
	path string
}

func (x *Organizations) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "organizations",
			Usage:       "TOML file of organizations to register at startup",
			Category:    "Ledger",
			Sources:     cli.EnvVars("PUNCHCARD_ORGANIZATIONS"),
			Destination: &x.path,
		},
	}
}

// Path returns the seed file path, empty when not configured
func (x *Organizations) Path() string {
	return x.path
}

// Load reads the seed file. Credentials files are resolved relative to the
// seed file. No file configured means no organizations.
func (x *Organizations) Load(now time.Time) ([]*model.Organization, error) {
	if x.path == "" {
		return nil, nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, err.Error(), goerr.V(ConfigPathKey, x.path))
		}
		return nil, goerr.Wrap(err, "failed to read organizations file", goerr.V(ConfigPathKey, x.path))
	}

	var file OrganizationFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V(ConfigPathKey, x.path))
	}

	orgs := make([]*model.Organization, 0, len(file.Organizations))
	seen := map[string]bool{}
	for i, entry := range file.Organizations {
		org, err := entry.organization(filepath.Dir(x.path), now)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid organization",
				goerr.V(ConfigPathKey, x.path),
				goerr.V(OrganizationIdxKey, i))
		}
		if seen[org.TeamID] {
			return nil, goerr.Wrap(ErrDuplicateTeamID, "team is listed twice",
				goerr.V(ConfigPathKey, x.path),
				goerr.V(TeamIDKey, org.TeamID))
		}
		seen[org.TeamID] = true
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func (e OrganizationEntry) organization(baseDir string, now time.Time) (*model.Organization, error) {
	ref := e.DocumentID
	if ref == "" {
		ref = e.DocumentURL
	}
	doc, err := model.ParseDocumentRef(ref)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V(TeamIDKey, e.TeamID))
	}
	if e.DocumentURL != "" {
		doc.URL = e.DocumentURL
	}

	if e.CredentialsFile != "" {
		path := e.CredentialsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		// #nosec G304 - path is listed in the operator's seed file
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(ErrCredentialsMissing, err.Error(), goerr.V(ConfigPathKey, path))
		}
		doc.Credentials = model.Credentials(data)
	}

	org := &model.Organization{
		TeamID:    e.TeamID,
		Document:  doc,
		CreatedBy: "config",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := org.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V(TeamIDKey, e.TeamID))
	}
	return org, nil
}
