package mailer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"sort"
	"strings"
	"time"
)

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type part struct {
	contentType string
	body        string
}

// compose renders e as an RFC 5322 message. Bodies are quoted-printable
// since buyer-facing text is Portuguese.
func compose(e Email, messageIDDomain string, now time.Time) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", randomHex(12), messageIDDomain))
	header("From", formatAddress(e.FromName, e.From))
	header("To", strings.Join(e.To, ", "))
	if len(e.Cc) > 0 {
		header("Cc", strings.Join(e.Cc, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", e.Subject))
	header("MIME-Version", "1.0")

	keys := make([]string, 0, len(e.Headers))
	for k, v := range e.Headers {
		if k != "" && v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		header(k, e.Headers[k])
	}

	var parts []part
	if e.TextBody != "" {
		parts = append(parts, part{"text/plain; charset=UTF-8", e.TextBody})
	}
	if e.HTMLBody != "" {
		parts = append(parts, part{"text/html; charset=UTF-8", e.HTMLBody})
	}

	if len(parts) == 1 {
		if err := writePart(&b, parts[0]); err != nil {
			return "", err
		}
		return b.String(), nil
	}

	boundary := "alt-" + randomHex(12)
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")
	for _, p := range parts {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		if err := writePart(&b, p); err != nil {
			return "", err
		}
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String(), nil
}

func writePart(b *strings.Builder, p part) error {
	fmt.Fprintf(b, "Content-Type: %s\r\n", p.contentType)
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	w := quotedprintable.NewWriter(b)
	if _, err := w.Write([]byte(p.body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	b.WriteString("\r\n")
	return nil
}
