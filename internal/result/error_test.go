package result

import (
	"errors"
	"io"
	"testing"
	"time"

	crdb "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exportgraph/internal/ir"
)

func TestErrorRendering(t *testing.T) {
	e := Newf(KindMissingReference, "missing reference %q", "sender").WithRecord("m1")
	assert.Equal(t, `missing reference "sender" (record m1)`, e.Error())

	e.Source = "telegram"
	assert.Equal(t, `telegram: missing reference "sender" (record m1)`, e.Error())
}

func TestWrapfKeepsCause(t *testing.T) {
	e := Wrapf(io.ErrUnexpectedEOF, KindProducer, "decode row %d", 7)

	assert.Equal(t, "decode row 7: unexpected EOF", e.Error())
	assert.True(t, errors.Is(e, io.ErrUnexpectedEOF))
	assert.True(t, IsKind(e, KindProducer))
	assert.False(t, IsKind(e, KindHashability))
	assert.False(t, IsKind(io.EOF, KindProducer))
}

func TestFromProduceError(t *testing.T) {
	pe := &ir.ProduceError{
		Source:  "whatsapp",
		Message: "bad blob",
		Context: ir.IRObject{"row": ir.IRInt(4)},
		Err:     io.ErrShortBuffer,
	}
	e := FromProduceError(pe)

	assert.Equal(t, KindProducer, e.Kind)
	assert.Equal(t, "whatsapp: bad blob: short buffer", e.Error())
	assert.Equal(t, ir.IRInt(4), e.Context["row"])
	assert.ErrorIs(t, e, io.ErrShortBuffer)
}

func TestWithContext(t *testing.T) {
	e := Newf(KindProducer, "x").WithContext("row", ir.IRInt(1))
	assert.Equal(t, ir.IRObject{"row": ir.IRInt(1)}, e.Context)
}

func TestExtractTimestampFromContext(t *testing.T) {
	e := Newf(KindProducer, "could not decode").
		WithContext("raw", ir.IRString("id=4 sent=2021-03-04 05:06:07 body=??"))

	ts, ok := ExtractTimestamp(e)
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), ts)
}

func TestExtractTimestampFromMessage(t *testing.T) {
	e := Newf(KindProducer, "row dated 2020-01-02T03:04:05+01:00 is truncated")

	ts, ok := ExtractTimestamp(e)
	require.True(t, ok)
	assert.True(t, time.Date(2020, 1, 2, 2, 4, 5, 0, time.UTC).Equal(ts))
}

func TestExtractTimestampFromCauseDetails(t *testing.T) {
	cause := crdb.WithDetail(errors.New("blob corrupt"), "captured 2019-12-31")
	e := Wrapf(cause, KindProducer, "decode failed")

	ts, ok := ExtractTimestamp(e)
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), ts)
}

func TestExtractTimestampFallsBackToAttached(t *testing.T) {
	at := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	e := AttachTimestamp(Newf(KindProducer, "no date here"), at)

	ts, ok := ExtractTimestamp(e)
	require.True(t, ok)
	assert.Equal(t, at, ts)
}

func TestExtractTimestampScannedValueWins(t *testing.T) {
	at := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	e := AttachTimestamp(Newf(KindProducer, "row from 2018-05-05"), at)

	ts, ok := ExtractTimestamp(e)
	require.True(t, ok)
	assert.Equal(t, time.Date(2018, 5, 5, 0, 0, 0, 0, time.UTC), ts)
}

func TestExtractTimestampNone(t *testing.T) {
	_, ok := ExtractTimestamp(Newf(KindProducer, "nothing"))
	assert.False(t, ok)

	_, ok = ExtractTimestamp(nil)
	assert.False(t, ok)

	// Date-shaped but invalid
	_, ok = ExtractTimestamp(Newf(KindProducer, "version 2024-13-45"))
	assert.False(t, ok)
}
