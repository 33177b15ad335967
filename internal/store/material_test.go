package store

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubMaterialRow feeds scanJoinedMaterial a fixed row. Dropdown join
// columns stay null; only the images column varies per test.
type stubMaterialRow struct {
	images []byte
}

func (r stubMaterialRow) Scan(dest ...any) error {
	for _, d := range dest {
		switch v := d.(type) {
		case *int:
			*v = 7
		case *string:
			*v = "stub"
		case *[]byte:
			*v = r.images
		case *bool:
			*v = true
		case *time.Time:
			*v = time.Unix(0, 0)
		case *sql.NullInt64, *sql.NullString:
		default:
			return fmt.Errorf("unexpected scan destination %T", d)
		}
	}
	return nil
}

func TestScanJoinedMaterialImages(t *testing.T) {
	t.Run("decodes the image list", func(t *testing.T) {
		material, err := scanJoinedMaterial(stubMaterialRow{
			images: []byte(`[{"url":"materials/7/a.jpg","isPrimary":true}]`),
		})
		require.NoError(t, err)
		require.Len(t, material.Images, 1)
		require.True(t, material.Images[0].IsPrimary)
		require.Nil(t, material.Division)
		require.Nil(t, material.Placement)
	})

	t.Run("empty column yields an empty list", func(t *testing.T) {
		material, err := scanJoinedMaterial(stubMaterialRow{images: nil})
		require.NoError(t, err)
		require.NotNil(t, material.Images)
		require.Empty(t, material.Images)
	})

	t.Run("corrupt column is an error, not an empty list", func(t *testing.T) {
		_, err := scanJoinedMaterial(stubMaterialRow{images: []byte(`{"oops"`)})
		require.Error(t, err)
		require.Contains(t, err.Error(), "decode images")
	})
}
