package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNaabuOutput(t *testing.T) {
	t.Run("GroupsByIP", func(t *testing.T) {
		output := "10.0.0.1:22\n10.0.0.1:80\n10.0.0.2:443\n"
		result := ParseNaabuOutput(output)

		assert.Equal(t, map[string][]int{
			"10.0.0.1": {22, 80},
			"10.0.0.2": {443},
		}, result)
	})

	t.Run("SkipsMalformedLines", func(t *testing.T) {
		output := "10.0.0.1:22\nnot-a-line\n10.0.0.1:abc\n\n  \n10.0.0.2:443\n"
		result := ParseNaabuOutput(output)

		assert.Equal(t, map[string][]int{
			"10.0.0.1": {22},
			"10.0.0.2": {443},
		}, result)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, ParseNaabuOutput(""))
	})
}

func TestNaabuScanner(t *testing.T) {
	t.Run("MissingBinary", func(t *testing.T) {
		n := NewNaabuScanner("/nonexistent/naabu", 0, 0)
		assert.False(t, n.IsAvailable())

		_, err := n.ScanHosts(context.Background(), []string{"10.0.0.1"}, nil)
		require.Error(t, err)
	})

	t.Run("Defaults", func(t *testing.T) {
		n := NewNaabuScanner("/usr/bin/naabu", 0, 0)
		assert.Equal(t, 500, n.Rate)
		assert.Equal(t, 2, n.Retries)
	})
}
