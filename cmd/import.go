package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/fingerprint"
	"github.com/leadon/outreach-cli/internal/model"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a CSV file",
	Long:  "Reads a CSV with a header row (name, email, title, company, location, profile_url, phone), fingerprints each row, and upserts the contacts at the start of the sequence. Rows that collapse to an already-stored fingerprint update that contact.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		contacts, err := readContactsCSV(importCSVPath)
		if err != nil {
			return err
		}
		if len(contacts) == 0 {
			return eris.New("import: no usable rows in CSV")
		}

		n, err := env.Store.BulkUpsertContacts(ctx, contacts)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int64("upserted", n),
			zap.String("csv", importCSVPath),
		)
		fmt.Printf("Imported %d contacts\n", n)
		return nil
	},
}

func readContactsCSV(path string) ([]model.Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "import: read header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["name"]; !ok {
		return nil, eris.New("import: csv must have a name column")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var contacts []model.Contact
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read row")
		}

		name := field(record, "name")
		if name == "" {
			continue
		}
		email := field(record, "email")
		if fingerprint.IsPlaceholderEmail(email) {
			email = ""
		}

		fp := fingerprint.Resolve(fingerprint.Attributes{
			Email:      email,
			ProfileURL: field(record, "profile_url"),
			Name:       name,
			Company:    field(record, "company"),
			Title:      field(record, "title"),
		})
		if seen[string(fp)] {
			continue
		}
		seen[string(fp)] = true

		contacts = append(contacts, model.Contact{
			Fingerprint: string(fp),
			Name:        name,
			Email:       email,
			Title:       field(record, "title"),
			Company:     field(record, "company"),
			Location:    field(record, "location"),
			ProfileURL:  field(record, "profile_url"),
			Phone:       field(record, "phone"),
			Source:      "manual",
			Stage:       model.StageNew,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return contacts, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
