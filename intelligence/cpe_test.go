package intelligence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dictFixture = `<?xml version="1.0" encoding="UTF-8"?>
<cpe-list xmlns="http://cpe.mitre.org/dictionary/2.0">
  <cpe-item name="cpe:/a:igor_sysoev:nginx:1.18.0">
    <title xml:lang="en-US">nginx 1.18.0</title>
    <cpe-23:cpe23-item xmlns:cpe-23="http://scap.nist.gov/schema/cpe-extension/2.3" name="cpe:2.3:a:nginx:nginx:1.18.0:*:*:*:*:*:*:*"/>
  </cpe-item>
  <cpe-item name="cpe:/a:openbsd:openssh:8.2">
    <cpe-23:cpe23-item xmlns:cpe-23="http://scap.nist.gov/schema/cpe-extension/2.3" name="cpe:2.3:a:openbsd:openssh:8.2:*:*:*:*:*:*:*"/>
  </cpe-item>
  <cpe-item name="cpe:/a:phusion:passenger:6.0.2">
    <cpe-23:cpe23-item xmlns:cpe-23="http://scap.nist.gov/schema/cpe-extension/2.3" name="cpe:2.3:a:phusion:passenger:6.0.2:*:*:*:*:*:*:*"/>
  </cpe-item>
</cpe-list>`

func writeDictFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpe-dict.xml")
	require.NoError(t, os.WriteFile(path, []byte(dictFixture), 0644))
	return path
}

func TestCpeIndexLoad(t *testing.T) {
	t.Run("ParsesAllEntries", func(t *testing.T) {
		ix := NewCpeIndex(writeDictFixture(t))
		require.NoError(t, ix.Load())
		assert.Equal(t, 3, ix.Len())
	})

	t.Run("LoadIsIdempotent", func(t *testing.T) {
		ix := NewCpeIndex(writeDictFixture(t))
		require.NoError(t, ix.Load())
		require.NoError(t, ix.Load())
		assert.Equal(t, 3, ix.Len())
	})

	t.Run("MissingFile", func(t *testing.T) {
		ix := NewCpeIndex("/nonexistent/dict.xml")
		assert.Error(t, ix.Load())

		_, ok := ix.Find("1.0", "nginx")
		assert.False(t, ok)
	})
}

func TestCpeIndexFind(t *testing.T) {
	ix := NewCpeIndex(writeDictFixture(t))
	require.NoError(t, ix.Load())

	t.Run("TripleMatch", func(t *testing.T) {
		name, ok := ix.Find("8.2", "openbsd", "openssh")
		assert.True(t, ok)
		assert.Equal(t, "cpe:2.3:a:openbsd:openssh:8.2:*:*:*:*:*:*:*", name)
	})

	t.Run("PairMatch", func(t *testing.T) {
		name, ok := ix.Find("1.18.0", "nginx")
		assert.True(t, ok)
		assert.Equal(t, "cpe:2.3:a:nginx:nginx:1.18.0:*:*:*:*:*:*:*", name)
	})

	t.Run("SubstringFallback", func(t *testing.T) {
		// swapped vendor/product misses the triple index and falls back
		// to the linear scan
		name, ok := ix.Find("8.2", "openssh", "openbsd")
		assert.True(t, ok)
		assert.Equal(t, "cpe:2.3:a:openbsd:openssh:8.2:*:*:*:*:*:*:*", name)
	})

	t.Run("NoMatch", func(t *testing.T) {
		_, ok := ix.Find("9.9.9", "nginx")
		assert.False(t, ok)
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		name, ok := ix.Find("8.2", "OpenBSD", "OpenSSH")
		assert.True(t, ok)
		assert.Equal(t, "cpe:2.3:a:openbsd:openssh:8.2:*:*:*:*:*:*:*", name)
	})
}

func TestNormalizeSoftwareName(t *testing.T) {
	t.Run("KnownAlias", func(t *testing.T) {
		vendor, product, ok := NormalizeSoftwareName("Microsoft IIS/10.0")
		assert.True(t, ok)
		assert.Equal(t, "microsoft", vendor)
		assert.Equal(t, "internet_information_services", product)
	})

	t.Run("HyphenVariant", func(t *testing.T) {
		vendor, product, ok := NormalizeSoftwareName("Phusion-Passenger")
		assert.True(t, ok)
		assert.Equal(t, "phusion", vendor)
		assert.Equal(t, "passenger", product)
	})

	t.Run("UnknownName", func(t *testing.T) {
		_, _, ok := NormalizeSoftwareName("nginx/1.18.0")
		assert.False(t, ok)
	})
}

func TestSplitName(t *testing.T) {
	assert.Equal(t, []string{"pure", "ftpd"}, SplitName("pure-ftpd"))
	assert.Equal(t, []string{"mod", "ssl"}, SplitName("mod_ssl"))
	assert.Equal(t, []string{"nginx"}, SplitName("nginx"))
}
