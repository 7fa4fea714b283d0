package discount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/polkart/storefront-api/internal/pricing"
)

const sampleJSON = `{
  "cartDiscountTiers": [
    {"quantity": 3, "discount": 10},
    {"quantity": 6, "discount": 15}
  ],
  "discountCodes": [
    {"code": "SAVE20", "discount": 20},
    {"code": "ANIA10", "discount": 10, "influencerEmail": "ania@example.com"}
  ]
}`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	require.Equal(t, []pricing.Tier{{MinQty: 3, Percent: 10}, {MinQty: 6, Percent: 15}}, table.Tiers)
	require.Len(t, table.Codes, 2)
	require.Equal(t, "ania@example.com", table.Codes[1].Contact)
}

func TestParseRejectsMalformedTables(t *testing.T) {
	cases := map[string]string{
		"bad json":           `{`,
		"percent over 100":   `{"cartDiscountTiers":[{"quantity":3,"discount":120}]}`,
		"zero min quantity":  `{"cartDiscountTiers":[{"quantity":0,"discount":10}]}`,
		"duplicate tier":     `{"cartDiscountTiers":[{"quantity":3,"discount":10},{"quantity":3,"discount":15}]}`,
		"empty code":         `{"discountCodes":[{"code":"  ","discount":10}]}`,
		"duplicate code":     `{"discountCodes":[{"code":"dwa","discount":10},{"code":"DWA","discount":20}]}`,
		"negative code pct":  `{"discountCodes":[{"code":"X","discount":-1}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discounts.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o600))

	table, err := LoadFile(path, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, table.Tiers, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())
	require.Error(t, err)
}

func TestLookupCaseInsensitive(t *testing.T) {
	table, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	code, ok := table.Lookup("save20")
	require.True(t, ok)
	require.Equal(t, 20, code.Percent)

	_, ok = table.Lookup("NOPE")
	require.False(t, ok)
	_, ok = table.Lookup("")
	require.False(t, ok)
}
