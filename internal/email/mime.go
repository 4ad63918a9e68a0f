package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

const lineLength = 76

var errEmptyBody = errors.New("message has neither text nor html body")

// buildMIME renders msg as an RFC 5322 message. When both Text and HTML are
// present the body is multipart/alternative.
func buildMIME(msg Message) ([]byte, error) {
	if msg.Text == "" && msg.HTML == "" {
		return nil, errEmptyBody
	}

	var buf bytes.Buffer
	if msg.From != "" {
		writeHeader(&buf, "From", msg.From)
	}
	writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "MIME-Version", "1.0")

	if msg.Text == "" || msg.HTML == "" {
		contentType, body := "text/plain", msg.Text
		if msg.HTML != "" {
			contentType, body = "text/html", msg.HTML
		}
		writeHeader(&buf, "Content-Type", contentType+"; charset=UTF-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "base64")
		buf.WriteString("\r\n")
		writeBase64(&buf, []byte(body))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")
	for _, part := range []struct{ contentType, body string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType + "; charset=UTF-8"},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", part.contentType, err)
		}
		writeBase64(pw, []byte(part.body))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	buf.WriteString(key + ": " + value + "\r\n")
}

func writeBase64(w io.Writer, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > lineLength {
		io.WriteString(w, enc[:lineLength]+"\r\n")
		enc = enc[lineLength:]
	}
	io.WriteString(w, enc+"\r\n")
}
