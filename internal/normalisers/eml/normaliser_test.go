package eml

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()
	assert.Equal(t, []string{"message/rfc822"}, mimeTypes)
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_SimpleEmail(t *testing.T) {
	emlContent := `From: sender@example.com
To: recipient@example.com
Subject: Test Email Subject
Date: Mon, 01 Jan 2024 10:00:00 +0000
Content-Type: text/plain

This is the body of the email.
It has multiple lines.
`

	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:      "/path/to/email.eml",
		MIMEType: "message/rfc822",
		Content:  []byte(emlContent),
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	text := result.Text()
	assert.Equal(t, "Test Email Subject", result.Title)
	assert.Contains(t, text, "This is the body of the email")
	assert.Contains(t, text, "From: sender@example.com")
	assert.Contains(t, text, "To: recipient@example.com")
	assert.Contains(t, text, "Date: Mon, 01 Jan 2024 10:00:00 +0000")
}

func TestNormalise_NoSubject(t *testing.T) {
	emlContent := `From: sender@example.com
Content-Type: text/plain

Email without subject.
`

	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "/path/to/my_email.eml",
		Content: []byte(emlContent),
	})
	require.NoError(t, err)

	// Should fall back to filename as title
	assert.Equal(t, "my email", result.Title)
}

func TestNormalise_HTMLBody(t *testing.T) {
	emlContent := `From: sender@example.com
Subject: HTML Email
Content-Type: text/html

<html>
<body>
<h1>Hello</h1>
<p>This is <b>HTML</b> content.</p>
</body>
</html>
`

	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "/path/to/email.eml",
		Content: []byte(emlContent),
	})
	require.NoError(t, err)

	text := result.Text()
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "This is HTML content.")
	assert.NotContains(t, text, "<h1>")
	assert.NotContains(t, text, "<p>")
}

func TestNormalise_InvalidEmail(t *testing.T) {
	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "/path/to/email.eml",
		Content: []byte("not a valid email"),
	})
	assert.ErrorIs(t, err, domain.ErrUnextractable)
	assert.Nil(t, result)
}

func TestParse_MultipartAlternative(t *testing.T) {
	emlContent := `From: sender@example.com
Subject: Multipart Email
Message-ID: <abc123@mail.example.com>
Content-Type: multipart/alternative; boundary="boundary123"

--boundary123
Content-Type: text/plain

Plain text version of the email.
--boundary123
Content-Type: text/html

<html><body><p>HTML version</p></body></html>
--boundary123--
`

	msg, err := Parse([]byte(emlContent))
	require.NoError(t, err)

	assert.Equal(t, "abc123@mail.example.com", msg.MessageID)
	assert.Equal(t, "Plain text version of the email.", msg.Text)
	assert.Empty(t, msg.Attachments)
}

func TestParse_Attachments(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake lab report")
	encoded := base64.StdEncoding.EncodeToString(pdf)

	emlContent := "From: lab@example.com\n" +
		"Subject: Your results\n" +
		"Message-ID: <m1@example.com>\n" +
		"Content-Type: multipart/mixed; boundary=\"outer\"\n" +
		"\n" +
		"--outer\n" +
		"Content-Type: multipart/alternative; boundary=\"inner\"\n" +
		"\n" +
		"--inner\n" +
		"Content-Type: text/plain; charset=utf-8\n" +
		"Content-Transfer-Encoding: quoted-printable\n" +
		"\n" +
		"Please find your HbA1c =3D 6.1% report attached.\n" +
		"--inner\n" +
		"Content-Type: text/html\n" +
		"\n" +
		"<p>ignored</p>\n" +
		"--inner--\n" +
		"--outer\n" +
		"Content-Type: application/pdf; name=\"report.pdf\"\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\n" +
		"Content-Transfer-Encoding: base64\n" +
		"\n" +
		encoded[:10] + "\n" + encoded[10:] + "\n" +
		"--outer\n" +
		"Content-Type: text/plain\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\n" +
		"\n" +
		"Fasting sample.\n" +
		"--outer--\n"

	msg, err := Parse([]byte(emlContent))
	require.NoError(t, err)

	assert.Equal(t, "m1@example.com", msg.MessageID)
	assert.Equal(t, "Your results", msg.Subject)
	assert.Equal(t, "Please find your HbA1c = 6.1% report attached.", msg.Text)

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, Attachment{ID: "1", Filename: "report.pdf", MIMEType: "application/pdf", Content: pdf}, msg.Attachments[0])
	assert.Equal(t, "2", msg.Attachments[1].ID)
	assert.Equal(t, "notes.txt", msg.Attachments[1].Filename)
	assert.Equal(t, "Fasting sample.", strings.TrimSpace(string(msg.Attachments[1].Content)))

	// Normalised text carries the body only.
	result, err := New().Normalise(context.Background(), &domain.RawDocument{Content: []byte(emlContent)})
	require.NoError(t, err)
	assert.NotContains(t, result.Text(), "Fasting sample")
}

func TestParse_DerivesMissingMessageID(t *testing.T) {
	raw := []byte("Subject: x\n\nbody\n")

	first, err := Parse(raw)
	require.NoError(t, err)
	second, err := Parse(raw)
	require.NoError(t, err)

	assert.Len(t, first.MessageID, 32)
	assert.Equal(t, first.MessageID, second.MessageID)
}

func TestParse_EncodedSubject(t *testing.T) {
	msg, err := Parse([]byte("Subject: =?UTF-8?B?VGVzdCBFbWFpbA==?=\n\nBody content.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Test Email", msg.Subject)
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text",
			input:    "Simple Subject",
			expected: "Simple Subject",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "utf8 base64 encoded",
			input:    "=?UTF-8?B?SGVsbG8gV29ybGQ=?=",
			expected: "Hello World",
		},
		{
			name:     "utf8 quoted printable",
			input:    "=?UTF-8?Q?Hello_World?=",
			expected: "Hello World",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, decodeHeader(tc.input))
		})
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
