package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bits-and-blooms/bloom/v3"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

func writeDump(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestStreamDump_CrossFileDedupe(t *testing.T) {
	dir := t.TempDir()
	first := writeDump(t, dir, "supplier-a.gz", []string{
		"4901234567894\tOnigiri\t150\thttps://cdn.example/a.png",
		"4902345678901\tGreen Tea\t120",
	})
	second := writeDump(t, dir, "supplier-b.gz", []string{
		"4902345678901\tGreen Tea 500ml\t130",
		"4903456789012\tMelon Pan\t180",
	})

	seen := bloom.NewWithEstimates(1000, 0.001)
	out := make(chan *catalog.Item, 16)
	ctx := context.Background()

	require.NoError(t, streamDump(ctx, first, seen, out))
	require.NoError(t, streamDump(ctx, second, seen, out))
	close(out)

	got := make(map[string]*catalog.Item)
	for it := range out {
		_, dup := got[it.Barcode]
		require.False(t, dup, "barcode %s sent twice", it.Barcode)
		got[it.Barcode] = it
	}
	require.Len(t, got, 3)

	// The earlier supplier's record wins for the shared barcode.
	assert.Equal(t, "Green Tea", got["4902345678901"].Name)
	assert.True(t, decimal.NewFromInt(120).Equal(got["4902345678901"].Price))
	assert.Equal(t, "https://cdn.example/a.png", got["4901234567894"].ImageURL)
}

func TestStreamDump_IntraFileDuplicate(t *testing.T) {
	dir := t.TempDir()
	dump := writeDump(t, dir, "supplier.gz", []string{
		"4901234567894\tOnigiri\t150",
		"4901234567894\tOnigiri Repack\t160",
	})

	seen := bloom.NewWithEstimates(1000, 0.001)
	out := make(chan *catalog.Item, 16)

	require.NoError(t, streamDump(context.Background(), dump, seen, out))
	close(out)

	var items []*catalog.Item
	for it := range out {
		items = append(items, it)
	}
	require.Len(t, items, 1)
	assert.Equal(t, "Onigiri", items[0].Name)
}

func TestStreamDump_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	dump := writeDump(t, dir, "supplier.gz", []string{
		"short\tToo Short\t100",
		"4901234567894\tOnigiri\t150",
		"not a record at all",
	})

	seen := bloom.NewWithEstimates(1000, 0.001)
	out := make(chan *catalog.Item, 16)

	require.NoError(t, streamDump(context.Background(), dump, seen, out))
	close(out)

	var items []*catalog.Item
	for it := range out {
		items = append(items, it)
	}
	require.Len(t, items, 1)
	assert.Equal(t, "4901234567894", items[0].Barcode)
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		ok   bool
	}{
		{"valid", "4901234567894\tOnigiri\t150", true},
		{"valid with image", "4901234567894\tOnigiri\t150\thttps://cdn.example/a.png", true},
		{"too few fields", "4901234567894\tOnigiri", false},
		{"barcode too short", "1234567\tOnigiri\t150", false},
		{"barcode too long", "490123456789012\tOnigiri\t150", false},
		{"empty name", "4901234567894\t \t150", false},
		{"unparseable price", "4901234567894\tOnigiri\tabc", false},
		{"negative price", "4901234567894\tOnigiri\t-10", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, ok := parseLine(tc.line)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, "4901234567894", it.Barcode)
				assert.Equal(t, "Onigiri", it.Name)
				assert.True(t, decimal.NewFromInt(150).Equal(it.Price))
			}
		})
	}
}

func TestParseLine_TrimsFields(t *testing.T) {
	it, ok := parseLine(" 4901234567894 \t Onigiri \t 150 \t https://cdn.example/a.png ")
	require.True(t, ok)
	assert.Equal(t, "4901234567894", it.Barcode)
	assert.Equal(t, "Onigiri", it.Name)
	assert.Equal(t, "https://cdn.example/a.png", it.ImageURL)
}
