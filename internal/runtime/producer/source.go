package producer

import (
	"bufio"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"unicode"

	charsetpkg "github.com/drblury/msgkit/internal/runtime/charset"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
)

// Alphabet is the character set random payloads are drawn from.
const Alphabet = "你好上海abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// LineWidth is the number of random characters between line breaks.
const LineWidth = 70

var alphabet = []rune(Alphabet)

// LoadTextFile reads the whole file, decodes it from charsetName and trims
// trailing whitespace.
func LoadTextFile(path, charsetName string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", &errspkg.IOError{Op: "read", Path: path, Err: err}
	}
	text, err := charsetpkg.Decode(raw, charsetName)
	if err != nil {
		return "", err
	}
	return strings.TrimRightFunc(text, unicode.IsSpace), nil
}

// ReadAll reads r until end of stream. Every line, including a final
// unterminated one, ends with "\n" in the result.
func ReadAll(r io.Reader) (string, error) {
	var b strings.Builder
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			b.WriteString(strings.TrimSuffix(line, "\n"))
			b.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", &errspkg.IOError{Op: "read", Path: "stdin", Err: err}
		}
	}
}

// RandomText returns size characters drawn uniformly from Alphabet with a
// line break after every LineWidth characters. A nil rng uses the global
// source.
func RandomText(size int, rng *rand.Rand) string {
	if size <= 0 {
		return ""
	}
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	var b strings.Builder
	b.Grow(size*3 + size/LineWidth)
	for i := 1; i <= size; i++ {
		b.WriteRune(alphabet[intN(len(alphabet))])
		if i%LineWidth == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
