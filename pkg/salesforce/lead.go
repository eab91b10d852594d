package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID          string `json:"Id" salesforce:"Id"`
	FirstName   string `json:"FirstName" salesforce:"FirstName"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Email       string `json:"Email" salesforce:"Email"`
	Title       string `json:"Title" salesforce:"Title"`
	Company     string `json:"Company" salesforce:"Company"`
	Phone       string `json:"Phone" salesforce:"Phone"`
	Industry    string `json:"Industry" salesforce:"Industry"`
	City        string `json:"City" salesforce:"City"`
	LeadSource  string `json:"LeadSource" salesforce:"LeadSource"`
	Description string `json:"Description" salesforce:"Description"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "FirstName", "LastName", "Email", "Title", "Company",
	"Phone", "Industry", "City", "LeadSource", "Description",
}

// FindLeadsByEmails queries Salesforce for Leads matching any of the given
// emails. Used to dedup before export. Empty emails are skipped; an empty
// input returns nil without a query.
func FindLeadsByEmails(ctx context.Context, c Client, emails []string) ([]Lead, error) {
	quoted := make([]string, 0, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		quoted = append(quoted, "'"+escapeSoql(e)+"'")
	}
	if len(quoted) == 0 {
		return nil, nil
	}

	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE Email IN (%s)",
		strings.Join(leadFields, ", "),
		strings.Join(quoted, ", "),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, "sf: find leads by email")
	}
	return leads, nil
}

// CreateLead creates a new Lead record and returns the new Salesforce ID.
// Salesforce requires LastName and Company on every Lead.
func CreateLead(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if fields["LastName"] == nil || fields["LastName"] == "" {
		return "", eris.New("sf: lead LastName is required")
	}
	if fields["Company"] == nil || fields["Company"] == "" {
		return "", eris.New("sf: lead Company is required")
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// UpdateLead updates a Lead record with the given fields.
func UpdateLead(ctx context.Context, c Client, leadID string, fields map[string]any) error {
	if leadID == "" {
		return eris.New("sf: lead id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Lead", leadID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", leadID))
	}
	return nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
