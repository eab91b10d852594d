// Package fingerprint computes stable identity keys for contacts so that
// duplicate directory records collapse to one stored contact.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
)

// Attributes are the raw candidate fields the resolver draws from.
type Attributes struct {
	Email      string
	ProfileURL string
	Name       string
	Company    string
	Title      string
}

// Fingerprint is a deterministic identity key. The three prefixes make the
// source rule recoverable from the key itself.
type Fingerprint string

const (
	prefixEmail   = "em:"
	prefixProfile = "li:"
	prefixHash    = "h:"
)

// LowConfidence reports whether the fingerprint was derived from the
// last-resort hash over empty identity fields. Such contacts are candidates
// for manual merge.
func (f Fingerprint) LowConfidence() bool {
	return string(f) == prefixHash+hashTriple("", "", "")
}

// Placeholder addresses some directories return before an email is
// unlocked. They identify nothing and must never dedup two real people.
var placeholderEmails = map[string]struct{}{
	"email_not_unlocked@domain.com":  {},
	"email_not_available@domain.com": {},
	"noemail@domain.com":             {},
}

var folder = cases.Fold()

// IsPlaceholderEmail reports whether the address is a known directory
// placeholder rather than a real mailbox.
func IsPlaceholderEmail(email string) bool {
	_, ok := placeholderEmails[folder.String(strings.TrimSpace(email))]
	return ok
}

// Resolve computes the fingerprint for a set of candidate attributes.
// Priority: valid email, then canonical profile URL, then a hash of
// name|company|title. Total and deterministic: missing inputs fall through,
// and total absence of all three yields the empty-fields hash.
func Resolve(attrs Attributes) Fingerprint {
	if email, ok := normalizeEmail(attrs.Email); ok {
		return Fingerprint(prefixEmail + email)
	}
	if prof, ok := canonicalProfileURL(attrs.ProfileURL); ok {
		return Fingerprint(prefixProfile + prof)
	}
	return Fingerprint(prefixHash + hashTriple(attrs.Name, attrs.Company, attrs.Title))
}

func normalizeEmail(raw string) (string, bool) {
	email := folder.String(strings.TrimSpace(raw))
	if email == "" {
		return "", false
	}
	if _, placeholder := placeholderEmails[email]; placeholder {
		return "", false
	}
	at := strings.Index(email, "@")
	// Minimal syntactic validity: non-empty local part and a dotted domain.
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsAny(email, " \t") {
		return "", false
	}
	return email, true
}

// trackingParams are query parameters stripped during URL canonicalization.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"fbclid", "gclid", "ref", "trk", "li_fat_id", "original_referer",
}

func canonicalProfileURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/")
	out := "https://" + host + path
	if enc := q.Encode(); enc != "" {
		out += "?" + enc
	}
	return out, true
}

func hashTriple(name, company, title string) string {
	key := folder.String(strings.TrimSpace(name)) + "|" +
		folder.String(strings.TrimSpace(company)) + "|" +
		folder.String(strings.TrimSpace(title))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
