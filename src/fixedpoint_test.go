package refclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTimestamp_AddSubRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := Timestamp{Sec: rapid.Uint32().Draw(t, "aSec"), Frac: rapid.Uint32().Draw(t, "aFrac")}
		b := Timestamp{Sec: rapid.Uint32().Draw(t, "bSec"), Frac: rapid.Uint32().Draw(t, "bFrac")}

		assert.Equal(t, a, a.Add(b).Sub(b))
	})
}

func TestTimestamp_NegateInvolution(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := Timestamp{Sec: rapid.Uint32().Draw(t, "sec"), Frac: rapid.Uint32().Draw(t, "frac")}
		assert.Equal(t, a, a.Negate().Negate())
	})
}

func TestTimestamp_FromFloatToFloatRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := rapid.Float64Range(-1<<30, 1<<30).Draw(t, "f")
		ts := FromFloat(f)
		got := ts.ToFloat()
		assert.InDelta(t, f, got, 1.0/4294967296.0*2)
	})
}

func TestTimestamp_CompareUnsigned(t *testing.T) {
	a := Timestamp{Sec: 100, Frac: 0}
	b := Timestamp{Sec: 200, Frac: 0}
	assert.Equal(t, -1, a.CompareUnsigned(b))
	assert.Equal(t, 1, b.CompareUnsigned(a))
	assert.Equal(t, 0, a.CompareUnsigned(a))
}

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"123.456", false},
		{"  -5.5  ", false},
		{"+7", false},
		{"", true},
		{"abc", true},
		{"1.2.3", true},
	}
	for _, c := range cases {
		_, err := ParseDecimal(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
		} else {
			assert.NoError(t, err, c.in)
		}
	}
}

func TestParseHexToHexRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ts := Timestamp{Sec: rapid.Uint32().Draw(t, "sec"), Frac: rapid.Uint32().Draw(t, "frac")}
		parsed, err := ParseHex(ts.ToHex())
		require.NoError(t, err)
		assert.Equal(t, ts, parsed)
	})
}

func TestParseHex_Malformed(t *testing.T) {
	_, err := ParseHex("not-a-timestamp")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMulSaturate_Overflow(t *testing.T) {
	big := Timestamp{Sec: 0x7FFFFFFF, Frac: 0xFFFFFFFF}
	got := big.MulSaturate(big)
	assert.Equal(t, Timestamp{Sec: 0x7FFFFFFF, Frac: 0xFFFFFFFF}, got)
}

func TestMulSaturate_Identity(t *testing.T) {
	one := FromFloat(1.0)
	rapid.Check(t, func(t *rapid.T) {
		sec := rapid.Int32Range(-1000, 1000).Draw(t, "sec")
		a := Timestamp{Sec: uint32(sec), Frac: 0}
		assert.Equal(t, a, a.MulSaturate(one))
	})
}

func TestFormatDecimal(t *testing.T) {
	ts := FromFloat(1.5)
	assert.Equal(t, "1.500000", FormatDecimal(ts, 6, false))
	assert.Equal(t, "1500.000000", FormatDecimal(ts, 6, true))
}
