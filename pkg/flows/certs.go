package flows

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"regexp"
	"strings"

	"github.com/tcmartin/connectsync/pkg/connecterr"
)

var (
	encryptionKeyIDPattern = regexp.MustCompile(`"name":\s*"EncryptionKeyId",\s*"value":\s*"([^"]*)"`)
	encryptionKeyPattern   = regexp.MustCompile(`"name":\s*"EncryptionKey",\s*"value":\s*"([^"]*)"`)
)

// ValidateCertificate checks that cert is a PEM encoded block
func ValidateCertificate(cert string) error {
	if !strings.Contains(cert, "-----BEGIN ") || !strings.Contains(cert, "-----END ") {
		return connecterr.Validation("encryption certificate is not PEM encoded")
	}
	if block, _ := pem.Decode([]byte(cert)); block == nil {
		return connecterr.Validation("encryption certificate could not be decoded")
	}
	return nil
}

// RewriteEncryption replaces the values of the parameters named exactly
// EncryptionKeyId and EncryptionKey in the raw flow text. Both values are
// written as JSON string escapes.
func RewriteEncryption(content, keyID, cert string) string {
	content = replaceGroup(encryptionKeyIDPattern, content, jsonEscape(keyID))
	return replaceGroup(encryptionKeyPattern, content, jsonEscape(strings.ReplaceAll(cert, "\r\n", "\n")))
}

// jsonEscape returns s encoded as the body of a JSON string literal
func jsonEscape(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return string(out[1 : len(out)-1])
}

// replaceGroup replaces the first capture group of every match of re
func replaceGroup(re *regexp.Regexp, s, value string) string {
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:loc[2]])
		b.WriteString(value)
		last = loc[3]
	}
	b.WriteString(s[last:])
	return b.String()
}
