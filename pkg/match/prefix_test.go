package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePrefix(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"glob tail", "data/spot/**/*.zip", "data/spot/"},
		{"leading glob", "*.zip", ""},
		{"exact path", "data/exact/file.zip", "data/exact/file.zip"},
		{"directory", "data/spot/", "data/spot/"},
		{"partial segment truncated", "data/BTC*/daily/*.zip", "data/"},
		{"brace alternation", "data/{spot,futures}/**", "data/"},
		{"char class", "data/[0-9]*/*.zip", "data/"},
		{"escaped star is literal", `data/file\*.zip`, "data/file*.zip"},
		{"meta without slash before", "BTC*-daily.zip", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePrefix(tt.pattern))
		})
	}
}

func TestDerivePrefixes(t *testing.T) {
	t.Run("distinct prefixes sorted", func(t *testing.T) {
		got := DerivePrefixes([]string{"data/futures/**", "data/spot/**"})
		assert.Equal(t, []string{"data/futures/", "data/spot/"}, got)
	})

	t.Run("parent subsumes child", func(t *testing.T) {
		got := DerivePrefixes([]string{"data/**", "data/spot/**"})
		assert.Equal(t, []string{"data/"}, got)
	})

	t.Run("full listing subsumes everything", func(t *testing.T) {
		got := DerivePrefixes([]string{"**/*.zip", "data/spot/**"})
		assert.Equal(t, []string{""}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, DerivePrefixes(nil))
	})
}

func TestMatcherPrefixes(t *testing.T) {
	t.Run("from includes", func(t *testing.T) {
		m, err := New(Config{Includes: []string{"data/spot/**/*.zip"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"data/spot/"}, m.Prefixes())
	})

	t.Run("no includes means full listing", func(t *testing.T) {
		m, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, []string{""}, m.Prefixes())
	})
}
