package bincode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
)

func TestEncode_LegacyFormula(t *testing.T) {
	// 5*1000 + 3*100 + 7
	assert.Equal(t, model.BinID(5307), Encode(5, 3, 7))
	assert.Equal(t, model.BinID(5000), Encode(5, 0, 0))
	assert.Equal(t, model.BinID(5016), Encode(5, 0, 16))

	c := New(5)
	col, row := c.Decode(5307)
	assert.Equal(t, 3, col)
	assert.Equal(t, 7, row)
}

func TestRoundTrip_AllStoresAndCoordinates(t *testing.T) {
	for store := 0; store <= 9; store++ {
		c := New(model.StoreID(store))
		for col := 0; col <= MaxAxis; col++ {
			for row := 0; row <= MaxAxis; row++ {
				gotCol, gotRow := c.Decode(c.Encode(col, row))
				if gotCol != col || gotRow != row {
					t.Fatalf("store=%d: decode(encode(%d,%d)) = (%d,%d)", store, col, row, gotCol, gotRow)
				}
			}
		}
	}
}

func TestDecode_MatchesLegacyModuloForSingleDigitColumns(t *testing.T) {
	// legacy: x = (id % (1000*s)) / 100, y = (id % (1000*s)) % 100
	for store := 1; store <= 9; store++ {
		c := New(model.StoreID(store))
		for col := 0; col <= 9; col++ {
			for row := 0; row <= MaxAxis; row++ {
				id := int(c.Encode(col, row))
				m := id % (1000 * store)
				gotCol, gotRow := c.Decode(model.BinID(id))
				require.Equal(t, m/100, gotCol)
				require.Equal(t, m%100, gotRow)
			}
		}
	}
}

func TestEncodeChecked_RejectsOutOfRange(t *testing.T) {
	c := New(5)
	for _, tc := range []struct{ col, row int }{{100, 0}, {0, 100}, {-1, 3}, {3, -1}} {
		_, err := c.EncodeChecked(tc.col, tc.row)
		require.ErrorIs(t, err, ErrCoordinateOutOfRange, "col=%d row=%d", tc.col, tc.row)
	}
	id, err := c.EncodeChecked(99, 99)
	require.NoError(t, err)
	assert.Equal(t, model.BinID(5*1000+99*100+99), id)
}

func TestDecodeChecked_FlagsForeignIDs(t *testing.T) {
	c := New(5)

	_, _, err := c.DecodeChecked(Encode(4, 6, 15))
	require.ErrorIs(t, err, ErrForeignBin)

	_, _, err = c.DecodeChecked(Encode(16, 1, 1))
	require.ErrorIs(t, err, ErrForeignBin)

	// store 7 aliases store 5 column 21; not detectable
	col, row, err := c.DecodeChecked(Encode(7, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 21, col)
	assert.Equal(t, 1, row)

	col, row, err = c.DecodeChecked(Encode(5, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, 6, col)
	assert.Equal(t, 15, row)
}

func TestKey_RoundTripAndString(t *testing.T) {
	c := New(5)
	k := c.Key(c.Encode(2, 9))
	assert.Equal(t, Key{Store: 5, Column: 2, Row: 9}, k)
	assert.Equal(t, "5:2:9", k.String())
	assert.Equal(t, model.BinID(5209), k.BinID())
}
