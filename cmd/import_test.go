package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadon/outreach-cli/internal/model"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadContactsCSV(t *testing.T) {
	path := writeCSV(t, `name,email,title,company,location,profile_url,phone
Dana Velez,dana@acme.io,CTO,Acme,"Austin, Texas",https://linkedin.com/in/dvelez,555-0100
Kim Osei,,VP Sales,Beta Corp,,,
`)

	contacts, err := readContactsCSV(path)
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	assert.Equal(t, "em:dana@acme.io", contacts[0].Fingerprint)
	assert.Equal(t, "Dana Velez", contacts[0].Name)
	assert.Equal(t, "Austin, Texas", contacts[0].Location)
	assert.Equal(t, model.StageNew, contacts[0].Stage)
	assert.Equal(t, "manual", contacts[0].Source)

	// No email or profile URL falls back to the identity hash.
	assert.Contains(t, contacts[1].Fingerprint, "h:")
}

func TestReadContactsCSV_SkipsBlankAndDuplicateRows(t *testing.T) {
	path := writeCSV(t, `name,email
Dana Velez,dana@acme.io
,ignored@acme.io
Dana V,dana@acme.io
`)

	contacts, err := readContactsCSV(path)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
}

func TestReadContactsCSV_BlanksPlaceholderEmail(t *testing.T) {
	path := writeCSV(t, `name,email,company
Dana Velez,email_not_unlocked@domain.com,Acme
`)

	contacts, err := readContactsCSV(path)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Empty(t, contacts[0].Email)
	assert.Contains(t, contacts[0].Fingerprint, "h:")
}

func TestReadContactsCSV_RequiresNameColumn(t *testing.T) {
	path := writeCSV(t, `email,company
dana@acme.io,Acme
`)

	_, err := readContactsCSV(path)
	require.Error(t, err)
}

func TestRootRegistersCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"search", "campaign", "accounts", "contacts", "runs", "import", "migrate", "serve"} {
		assert.Contains(t, names, want)
	}
}
