package binaryio

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteU8(0xAB))
	require.NoError(t, w.WriteU16(0x1234))
	require.NoError(t, w.WriteU32(0xDEADBEEF))
	require.NoError(t, w.WriteU64(0x0123456789ABCDEF))
	require.NoError(t, w.WriteI32(-42))
	require.NoError(t, w.WriteString("hello"))
	assert.Equal(t, int64(1+2+4+8+4+2+5), w.Position())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)
	u16, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)
	u32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)
	u64, err := r.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789ABCDEF), u64)
	i32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), int32(i32))
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
	assert.Equal(t, int64(buf.Len()), r.Position())
}

func TestLittleEndianLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteU32(0x01020304))
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf.Bytes())
}

func TestStringLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteString("ab"))
	assert.Equal(t, []byte{0x02, 0x00, 'a', 'b'}, buf.Bytes())
}

func TestStringTooLong(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteString(string(make([]byte, 0x10000)))
	require.ErrorIs(t, err, ErrStringTooLong)
}

func TestTruncatedReads(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x02}))
	_, err := r.ReadU32()
	require.ErrorIs(t, err, ErrTruncated)

	r = NewReader(bytes.NewReader([]byte{0x05, 0x00, 'a'}))
	_, err = r.ReadString()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestPatch(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "patch")
	require.NoError(t, err)
	defer tmp.Close()

	w := NewWriter(tmp)
	pos, err := w.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, w.WriteU8(0xFF))
	require.NoError(t, w.PatchU32(pos, 0xCAFEBABE))
	assert.Equal(t, int64(5), w.Position())

	data, err := os.ReadFile(tmp.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBE, 0xBA, 0xFE, 0xCA, 0xFF}, data)
}
