package namecodec

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{" ", "_0020"},
		{".", "_."},
		{"..", "_.."},
		{"...", "_..."},
		{".my-not-hidden-file", "_.my-not-hidden-file"},
		{".synctogit", "_.synctogit"},
		{"00", "00"},
		{"\t", "_0009"},
		{"\t_", "_0009__"},
		{"_0009_", "__0009__"},
		{"__0009_", "____0009__"},
		{"con", "_con"},
		{"CON", "_CON"},
		{"con.txt", "_con.txt"},
		{"con.tar.gz", "_con.tar.gz"},
		{"contrib", "contrib"},
		{"lpt1", "_lpt1"},
		{"раз два", "раз два"},
		{"раз_два", "раз__два"},
		{`раз/два\три`, "раз_002fдва_005cтри"},
		{"❤️and💩and👍🏾", "_2764_fe0fand_d83d_dca9and_d83d_dc4d_d83c_dffe"},
		{"a [b] (c)", "a [b] (c)"},
		{" leading", "_0020leading"},
		{"trailing ", "trailing_0020"},
		{"in the middle", "in the middle"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Encode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, back)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Encode("bad\xffname")
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	_, err = Encode(strings.Repeat("a", 251))
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = Encode(strings.Repeat("💩", 26))
	assert.ErrorIs(t, err, ErrTooLong)

	got, err := Encode(strings.Repeat("a", 250))
	require.NoError(t, err)
	assert.Len(t, got, 250)
}

func TestDecodeAmbiguousPrefixes(t *testing.T) {
	// Names that look like an escaped prefix must survive a roundtrip.
	for _, raw := range []string{"_con", "_.x", "_0009<", "__", "_", "a_", "_a", "con_", "x_0041"} {
		enc, err := Encode(raw)
		require.NoError(t, err, raw)
		dec, err := Decode(enc)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, dec, "encoded as %q", enc)
	}
}

func TestDecodeForeignNames(t *testing.T) {
	tests := []struct {
		seg  string
		want string
	}{
		{"plain", "plain"},
		{"trailing_", "trailing_"},
		{"_zz", "_zz"},
		{"a_12", "a_12"},
		{"_0041b", "Ab"},
		{"___0041", "_A"},
	}
	for _, tt := range tests {
		got, err := Decode(tt.seg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.seg)
	}

	_, err := Decode("")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestEncodePath(t *testing.T) {
	enc, err := EncodePath([]string{"Work", "a/b", ".hidden"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "a_002fb", "_.hidden"}, enc)

	dec, err := DecodePath(enc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "a/b", ".hidden"}, dec)

	_, err = EncodePath([]string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRoundtripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringN(1, 40, -1).Draw(t, "raw")
		if !utf8.ValidString(raw) {
			t.Skip("invalid utf-8")
		}

		enc, err := Encode(raw)
		if err != nil {
			if err == ErrTooLong {
				t.Skip("too long")
			}
			t.Fatalf("Encode(%q): %v", raw, err)
		}

		if strings.ContainsAny(enc, `/\`) {
			t.Fatalf("Encode(%q) = %q contains a path separator", raw, enc)
		}
		if strings.HasPrefix(enc, ".") || IsReserved(enc) {
			t.Fatalf("Encode(%q) = %q is not safe", raw, enc)
		}

		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q): %v", enc, err)
		}
		if dec != raw {
			t.Fatalf("roundtrip mismatch: %q -> %q -> %q", raw, enc, dec)
		}
	})
}

func TestExtFromMimeType(t *testing.T) {
	tests := map[string]string{
		"image/png":                 "png",
		"application/javascript":    "js",
		"dsjkahdkas/uwqieyiquwe":    "uwqieyiquwe",
		"text/plain":                "txt",
		"text/plain; charset=utf-8": "txt",
		"application/msword":        "doc",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtFromMimeType(in), in)
	}
}

func TestFit(t *testing.T) {
	got, err := Fit(strings.Repeat("a", 300), 10)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaa", got)

	// Escapes are never split.
	got, err = Fit("aaaaaaaa/x", 10)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa", got)

	got, err = Fit("short", 0)
	require.NoError(t, err)
	assert.Equal(t, "short", got)

	_, err = Fit("", 10)
	assert.ErrorIs(t, err, ErrEmpty)
}
