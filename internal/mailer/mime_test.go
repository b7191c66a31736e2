package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var composeNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func TestComposeTextOnly(t *testing.T) {
	raw, err := compose(Email{
		FromName: "Loja Pix",
		From:     "no-reply@loja.test",
		To:       []string{"ana@example.com"},
		Subject:  "Pagamento confirmado",
		TextBody: "Olá Ana, seu pagamento de R$ 49,90 foi confirmado.",
		Headers:  map[string]string{"X-Order-ID": "o-1", "": "skip"},
	}, "loja.test", composeNow)
	require.NoError(t, err)

	assert.Contains(t, raw, "Date: Sat, 17 Oct 2026 09:00:00 +0000\r\n")
	assert.Contains(t, raw, "To: ana@example.com\r\n")
	assert.Contains(t, raw, "X-Order-ID: o-1\r\n")
	assert.Contains(t, raw, "Content-Transfer-Encoding: quoted-printable")
	assert.Contains(t, raw, "Ol=C3=A1 Ana")
	assert.NotContains(t, raw, "multipart")
	assert.Regexp(t, `Message-ID: <[0-9a-f]{24}@loja\.test>`, raw)
}

func TestComposeMultipart(t *testing.T) {
	raw, err := compose(Email{
		From:     "no-reply@loja.test",
		To:       []string{"ana@example.com"},
		Cc:       []string{"ops@loja.test"},
		Subject:  "Confirmação",
		TextBody: "texto",
		HTMLBody: "<p>html</p>",
	}, "loja.test", composeNow)
	require.NoError(t, err)

	assert.Contains(t, raw, "Cc: ops@loja.test\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?Confirma=C3=A7=C3=A3o?=\r\n")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Equal(t, 1, strings.Count(raw, "text/plain"))
	assert.Equal(t, 1, strings.Count(raw, "text/html"))
	assert.True(t, strings.HasSuffix(raw, "--\r\n"))
}

func TestEmailValidate(t *testing.T) {
	base := Email{From: "a@b.c", To: []string{"x@y.z"}, Subject: "s", TextBody: "t"}
	require.NoError(t, base.Validate())

	for name, mut := range map[string]func(*Email){
		"no recipient": func(e *Email) { e.To = nil },
		"no from":      func(e *Email) { e.From = "" },
		"no subject":   func(e *Email) { e.Subject = "" },
		"no body":      func(e *Email) { e.TextBody = "" },
	} {
		t.Run(name, func(t *testing.T) {
			e := base
			mut(&e)
			assert.ErrorIs(t, e.Validate(), ErrInvalidEmail)
		})
	}
}

func TestMockRecords(t *testing.T) {
	m := &Mock{}
	require.NoError(t, m.Send(context.Background(), Email{Subject: "a"}))
	assert.Len(t, m.Sent(), 1)

	m.Err = assert.AnError
	assert.ErrorIs(t, m.Send(context.Background(), Email{}), assert.AnError)
	assert.Len(t, m.Sent(), 1)
}
