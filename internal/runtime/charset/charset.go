// Package charset converts between UTF-8 and the text encodings accepted on
// the command line.
package charset

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
)

// Default is the charset used when none is configured.
const Default = "UTF-8"

var errUnsupported = errors.New("unsupported charset")

// Lookup resolves an IANA charset name such as "UTF-8", "ISO-8859-1" or
// "windows-1252". Unknown names return an *errors.EncodingError.
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if isUTF8(name) {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, &errspkg.EncodingError{Charset: name, Err: err}
	}
	if enc == nil {
		return nil, &errspkg.EncodingError{Charset: name, Err: errUnsupported}
	}
	return enc, nil
}

// Decode converts b from the named charset into a UTF-8 string.
func Decode(b []byte, name string) (string, error) {
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", &errspkg.EncodingError{Charset: name, Err: err}
	}
	return string(out), nil
}

// NewWriter wraps w so UTF-8 text written to it is stored in the named
// charset. Runes the charset cannot represent are replaced.
func NewWriter(w io.Writer, name string) (io.Writer, error) {
	if isUTF8(strings.TrimSpace(name)) {
		return w, nil
	}
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return encoding.ReplaceUnsupported(enc.NewEncoder()).Writer(w), nil
}

func isUTF8(name string) bool {
	return name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8")
}
