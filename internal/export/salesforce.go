// Package export pushes qualified contacts into Salesforce as Leads.
package export

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/store"
	"github.com/leadon/outreach-cli/pkg/salesforce"
)

// exportedTag marks a contact that has already been pushed to Salesforce.
const exportedTag = "exported:salesforce"

// leadSource is stamped on every created Lead.
const leadSource = "Outreach CLI"

// Store is the subset of storage the exporter needs.
type Store interface {
	ListContacts(ctx context.Context, filter store.ContactFilter) ([]model.Contact, error)
	UpsertContact(ctx context.Context, contact model.Contact) error
}

// Summary reports the outcome of one export pass.
type Summary struct {
	Qualified       int `json:"qualified"`
	Exported        int `json:"exported"`
	AlreadyExported int `json:"already_exported"`
	MatchedExisting int `json:"matched_existing"` // email already a Lead in Salesforce
	Failed          int `json:"failed"`
}

// Exporter pushes qualified contacts to Salesforce.
type Exporter struct {
	client  salesforce.Client
	store   Store
	nowFunc func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Exporter) { e.nowFunc = now }
}

func NewExporter(client salesforce.Client, st Store, opts ...Option) *Exporter {
	e := &Exporter{
		client:  client,
		store:   st,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export pushes every qualified contact that has not been exported yet.
// Contacts whose email already exists as a Salesforce Lead are tagged but not
// re-created. Per-record insert failures are counted and logged; the pass
// keeps going.
func (e *Exporter) Export(ctx context.Context) (*Summary, error) {
	contacts, err := e.store.ListContacts(ctx, store.ContactFilter{
		Stage: model.StageQualified,
		Limit: 1000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: list qualified contacts")
	}

	summary := &Summary{Qualified: len(contacts)}

	var pending []model.Contact
	var emails []string
	for _, c := range contacts {
		if hasTag(c, exportedTag) {
			summary.AlreadyExported++
			continue
		}
		pending = append(pending, c)
		emails = append(emails, c.Email)
	}
	if len(pending) == 0 {
		return summary, nil
	}

	existing, err := salesforce.FindLeadsByEmails(ctx, e.client, emails)
	if err != nil {
		return nil, eris.Wrap(err, "export: dedup against existing leads")
	}
	existingByEmail := make(map[string]bool, len(existing))
	for _, l := range existing {
		existingByEmail[strings.ToLower(l.Email)] = true
	}

	var toInsert []model.Contact
	var records []map[string]any
	for _, c := range pending {
		if c.Email != "" && existingByEmail[strings.ToLower(c.Email)] {
			summary.MatchedExisting++
			if err := e.markExported(ctx, c); err != nil {
				return nil, err
			}
			continue
		}
		toInsert = append(toInsert, c)
		records = append(records, leadRecord(c))
	}
	if len(toInsert) == 0 {
		return summary, nil
	}

	results, err := salesforce.BulkInsertLeads(ctx, e.client, records)
	if err != nil {
		return nil, eris.Wrap(err, "export: bulk insert leads")
	}

	for i, r := range results {
		if !r.Success {
			summary.Failed++
			zap.L().Warn("lead insert rejected",
				zap.String("fingerprint", toInsert[i].Fingerprint),
				zap.Strings("errors", r.Errors))
			continue
		}
		summary.Exported++
		if err := e.markExported(ctx, toInsert[i]); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

func (e *Exporter) markExported(ctx context.Context, c model.Contact) error {
	c.Tags = append(c.Tags, exportedTag)
	c.UpdatedAt = e.nowFunc()
	if err := e.store.UpsertContact(ctx, c); err != nil {
		return eris.Wrapf(err, "export: tag contact %s", c.Fingerprint)
	}
	return nil
}

// leadRecord maps a contact onto Salesforce Lead fields. LastName and Company
// are required by Salesforce, so missing values get placeholders.
func leadRecord(c model.Contact) map[string]any {
	first, last := splitName(c.Name)
	company := c.Company
	if company == "" {
		company = "Unknown"
	}

	record := map[string]any{
		"LastName":   last,
		"Company":    company,
		"LeadSource": leadSource,
	}
	if first != "" {
		record["FirstName"] = first
	}
	if c.Email != "" {
		record["Email"] = c.Email
	}
	if c.Title != "" {
		record["Title"] = c.Title
	}
	if c.Phone != "" {
		record["Phone"] = c.Phone
	}
	if c.Industry != "" {
		record["Industry"] = c.Industry
	}
	if c.Location != "" {
		record["City"] = firstSegment(c.Location)
	}

	var desc []string
	if c.ProfileURL != "" {
		desc = append(desc, "Profile: "+c.ProfileURL)
	}
	if c.SearchQuery != "" {
		desc = append(desc, "Discovered via: "+c.SearchQuery)
	}
	if c.Notes != "" {
		desc = append(desc, c.Notes)
	}
	if len(desc) > 0 {
		record["Description"] = strings.Join(desc, "\n")
	}
	return record
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", "Unknown"
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

func firstSegment(location string) string {
	if i := strings.Index(location, ","); i >= 0 {
		return strings.TrimSpace(location[:i])
	}
	return location
}

func hasTag(c model.Contact, tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
