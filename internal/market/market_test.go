package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "bist", text: "Borsa bugün sert, THYAO hissesi tavan", want: []string{"BIST"}},
		{name: "fx inflected", text: "Dolara ne olacak, kurlar yine hareketli", want: []string{"FX"}},
		{name: "crypto and macro", text: "Fed faiz kararı sonrası bitcoin, btc ve ethereum", want: []string{"Kripto", "Makro"}},
		{name: "gold", text: "gram altın rekor", want: []string{"Emtia"}},
		{name: "whole word only", text: "kurum kuralları değişti", want: []string{}},
		{name: "nothing", text: "günaydın herkese", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectTopics(tt.text))
		})
	}
}

func TestMatchesTopic(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchesTopic("TCMB faizi sabit tuttu", "Makro"))
	assert.True(t, MatchesTopic("bist 10 bin oldu", "bist"))
	assert.False(t, MatchesTopic("altın ons", "Kripto"))
	assert.True(t, MatchesTopic("Halka arz takvimi", "Halka"))
	assert.False(t, MatchesTopic("halkalı", "Halka"))
}

func TestSymbols(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"THYAO", "BTC", "ASELS"}, Symbols("$thyao alırım, BTC de olur, ASELS de, thyao tekrar $THYAO"))
	assert.Empty(t, Symbols("bugün piyasa sakin"))
	assert.Equal(t, []string{"XU100"}, Symbols("XU100 rekor"))
}

func TestSymbolOverlap(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, SymbolOverlap("thyao ve asels ne olur?", []string{"THYAO", "$ASELS", "GARAN"}))
	assert.Equal(t, 0, SymbolOverlap("thyao", nil))
}

func TestSentiment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"Endeks rekor kırdı, güçlü yükseliş", SentimentPositive},
		{"Borsa çöktü, panik satışı var", SentimentNegative},
		{"Sence dolar ne olur, ne düşünüyorsun?", SentimentNeutral},
		{"📉📉", SentimentNegative},
		{"artık bilmiyorum", SentimentNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sentiment(tt.text), tt.text)
	}
}
