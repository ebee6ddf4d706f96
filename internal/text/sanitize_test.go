package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/text"
)

// TestSanitize groups cases by the cleaning step they exercise.
func TestSanitize(t *testing.T) {
	t.Parallel()

	type sanitizeTestCase struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}

	testGroups := map[string][]sanitizeTestCase{
		"Speaker Prefix Removal": {
			{name: "No prefix", input: "BIST bugün sakin.", expected: "BIST bugün sakin."},
			{name: "Bot prefix", input: "[borsaci_ali]: dolar yine kıpırdıyor", expected: "dolar yine kıpırdıyor"},
			{name: "Prefix with whitespace", input: "   [Ayşe]:    altın sert düştü  ", expected: "altın sert düştü"},
			{name: "Prefix in middle kept", input: "bak şuna [Ayşe]: dedi ki", expected: "bak şuna [Ayşe]: dedi ki"},
			{name: "Multi line prefixes", input: "[A]: ilk\n[B]: ikinci", expected: "ilk\nikinci"},
		},
		"Whitespace And Unicode": {
			{name: "Collapse spaces", input: "faiz   kararı\t\tyarın", expected: "faiz kararı yarın"},
			{name: "CRLF", input: "satır1\r\nsatır2", expected: "satır1\nsatır2"},
			{name: "Too many newlines", input: "a\n\n\n\nb", expected: "a\n\nb"},
			{name: "Zero width removed", input: "kri\u200Bpto", expected: "kripto"},
			{name: "NBSP to space", input: "THYAO\u00A0hedef", expected: "THYAO hedef"},
			{name: "Control chars", input: "x\x07y", expected: "x y"},
		},
		"Quote Unwrapping": {
			{name: "Double quotes", input: `"bugün BIST yeşil"`, expected: "bugün BIST yeşil"},
			{name: "Typographic quotes", input: "“euro tarafı ilginç”", expected: "euro tarafı ilginç"},
			{name: "Inner quote kept", input: `"a" dedi "b"`, expected: `"a" dedi "b"`},
		},
		"Rejections": {
			{name: "Empty", input: "", wantErr: true},
			{name: "Whitespace only", input: "  \n\t ", wantErr: true},
			{name: "Prefix only", input: "[Ayşe]:   ", wantErr: true},
		},
	}

	for groupName, cases := range testGroups {
		for _, tc := range cases {
			t.Run(groupName+"/"+tc.name, func(t *testing.T) {
				t.Parallel()
				got, err := text.Sanitize(tc.input)
				if tc.wantErr {
					require.Error(t, err)
					assert.True(t, errs.IsContentRejected(err))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tc.expected, got)
			})
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "kısa", text.TruncateRunes("kısa", 10))
	assert.Equal(t, "çğı…", text.TruncateRunes("çğıöşü", 4))
	assert.Equal(t, "…", text.TruncateRunes("abc", 1))
}
