package envelope

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

func TestBuildStampsProvenance(t *testing.T) {
	p := NewProvenanceFrom("Sender", "alice", "box-1", "corr-1")
	out := p.Build(Text("hello"), TypeStdin)

	md := out.Metadata()
	assert.Equal(t, "Sender", md[metadatapkg.KeyApp])
	assert.Equal(t, "alice", md[metadatapkg.KeyUser])
	assert.Equal(t, "box-1", md[metadatapkg.KeyHost])
	assert.Equal(t, "5B", md[metadatapkg.KeySize])
	assert.Equal(t, "corr-1", md[metadatapkg.KeyCorrelationID])
	assert.Equal(t, "stdin", md[metadatapkg.KeyType])
	assert.Equal(t, metadatapkg.ContentTypeText, md[metadatapkg.KeyContentType])
	assert.Len(t, out.UUID(), 26)
	assert.Equal(t, TypeStdin, out.Type())
}

func TestSizeIsUTF8ByteLength(t *testing.T) {
	p := NewProvenanceFrom("Sender", "u", "h", "c")
	for _, text := range []string{"", "a", "你好上海", "abc\n你好\n", "ü"} {
		out := p.Build(Text(text), TypeFile)
		assert.Equal(t, FormatSize(len(text)), out.Metadata()[metadatapkg.KeySize], text)
	}

	multi := p.Build(Text("你好"), TypeFile)
	assert.Equal(t, 2, utf8.RuneCountInString("你好"))
	assert.Equal(t, "6B", multi.Metadata()[metadatapkg.KeySize])
}

func TestBinaryPayload(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x10}
	payload := Binary(raw)
	raw[0] = 0x42

	out := NewProvenanceFrom("Sender", "u", "h", "c").Build(payload, TypeFile)
	md := out.Metadata()
	assert.Equal(t, "3B", md[metadatapkg.KeySize])
	assert.Equal(t, metadatapkg.ContentTypeBinary, md[metadatapkg.KeyContentType])
	assert.Equal(t, byte(0x00), out.Payload().Bytes()[0])
}

func TestOutboundMessageIsImmutable(t *testing.T) {
	out := NewProvenanceFrom("Sender", "u", "h", "c").Build(Text("x"), TypeFIFO)

	md := out.Metadata()
	md[metadatapkg.KeyApp] = "tampered"
	assert.Equal(t, "Sender", out.Metadata()[metadatapkg.KeyApp])

	b := out.Payload().Bytes()
	b[0] = 'y'
	assert.Equal(t, "x", out.Payload().String())

	first := out.ToWatermill()
	first.Metadata.Set(metadatapkg.KeyType, "changed")
	assert.Equal(t, "fifo", out.ToWatermill().Metadata.Get(metadatapkg.KeyType))
	assert.Equal(t, out.UUID(), first.UUID)
}

func TestProvenanceFallbacks(t *testing.T) {
	origHost, origUser := hostname, currentUser
	defer func() { hostname, currentUser = origHost, origUser }()

	hostname = func() (string, error) { return "", errors.New("no hostname") }
	currentUser = func() (string, error) { return "", errors.New("no user") }
	t.Setenv("USER", "")

	p := NewProvenance("Sender", "")
	assert.Equal(t, Unknown, p.Host())
	assert.Equal(t, Unknown, p.User())
	assert.NotEmpty(t, p.CorrelationID())
}

func TestCorrelationIDSharedAcrossMessages(t *testing.T) {
	p := NewProvenance("Sender", "")
	first := p.Build(Text("a"), TypeRandom)
	second := p.Build(Text("b"), TypeRandom)

	require.NotEmpty(t, p.CorrelationID())
	assert.Equal(t, p.CorrelationID(), first.Metadata()[metadatapkg.KeyCorrelationID])
	assert.Equal(t, p.CorrelationID(), second.Metadata()[metadatapkg.KeyCorrelationID])
	assert.NotEqual(t, first.UUID(), second.UUID())
}
