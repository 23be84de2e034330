package listener

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
)

func TestReceiverWritesLazily(t *testing.T) {
	opened := 0
	sink := &bufferSink{}
	r := NewReceiver(nil, WithWriterFactory(func() (io.WriteCloser, error) {
		opened++
		return sink, nil
	}))

	require.NoError(t, r.Close())
	assert.Zero(t, opened)

	require.NoError(t, r.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("a")}))
	require.NoError(t, r.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("b")}))
	assert.Equal(t, 1, opened)
	assert.Equal(t, "a\nb\n", sink.String())

	require.NoError(t, r.Close())
	assert.True(t, sink.closed)
}

func TestReceiverEncodesOutput(t *testing.T) {
	sink := &bufferSink{}
	r := NewReceiver(nil, WithWriterFactory(sink.factory()), WithEncoding("ISO-8859-1"))

	require.NoError(t, r.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("café")}))
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9, '\n'}, []byte(sink.String()))
}

func TestReceiverUnsupportedEncodingSkipsWrites(t *testing.T) {
	sink := &bufferSink{}
	r := NewReceiver(nil, WithWriterFactory(sink.factory()), WithEncoding("x-klingon"))

	assert.NoError(t, r.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("a")}))
	assert.NoError(t, r.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("b")}))
	assert.Empty(t, sink.String())
}

func TestReceiverUnknownPayload(t *testing.T) {
	sink := &bufferSink{}
	r := NewReceiver(nil, WithWriterFactory(sink.factory()))

	err := r.Handle(context.Background(), Delivery{Kind: PayloadOther, ContentType: "application/json"})
	assert.ErrorIs(t, err, errspkg.ErrUnsupportedPayload)
	assert.Contains(t, err.Error(), "application/json")
	assert.Equal(t, "Unknown message type: application/json\n", sink.String())
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()

	t.Run("plain file truncates", func(t *testing.T) {
		path := filepath.Join(dir, "out.txt")
		require.NoError(t, os.WriteFile(path, []byte("stale content\n"), 0o600))

		r := NewReceiver(nil, WithWriterFactory(FileSink(path, Rotation{})))
		require.NoError(t, r.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("fresh")}))
		require.NoError(t, r.Close())

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "fresh\n", string(got))
	})

	t.Run("rotation uses lumberjack", func(t *testing.T) {
		w, err := FileSink(filepath.Join(dir, "rotated.txt"), Rotation{MaxSizeMB: 1, MaxBackups: 2})()
		require.NoError(t, err)
		defer func() { _ = w.Close() }()

		lj, ok := w.(*lumberjack.Logger)
		require.True(t, ok)
		assert.Equal(t, 1, lj.MaxSize)
		assert.Equal(t, 2, lj.MaxBackups)
	})

	t.Run("unwritable path", func(t *testing.T) {
		_, err := FileSink(filepath.Join(dir, "missing", "out.txt"), Rotation{})()
		var ioErr *errspkg.IOError
		assert.ErrorAs(t, err, &ioErr)
	})
}

func TestHeapstalkReportsMemory(t *testing.T) {
	probed := 0
	h := NewHeapstalk(nil, WithMemoryProbe(func() uint64 {
		probed++
		return 42
	}))

	require.NoError(t, h.Handle(context.Background(), Delivery{Kind: PayloadText, Payload: []byte("x"), Seq: 1}))
	require.NoError(t, h.Handle(context.Background(), Delivery{Kind: PayloadBytes, Payload: []byte{1}, Seq: 2}))
	assert.Equal(t, 1, probed)
	assert.Equal(t, []string{"x\n"}, h.Retained())
	assert.NoError(t, h.Close())
}
