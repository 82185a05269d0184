package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

const feedYAML = `
tables:
  - name: users
    comment: registered accounts
    columns:
      - name: id
        type: integer
      - name: email
        type: text
        nullable: true
  - schema: sales
    name: orders
    columns:
      - name: id
        type: bigint
      - name: user_id
        type: integer
    foreign_keys:
      - columns: [user_id]
        target_table: users
        target_columns: [id]
routines:
  - refresh_stats
`

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(feedYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	users, ok := c.Lookup("", "users")
	require.True(t, ok)
	assert.Equal(t, "registered accounts", users.Comment())
	assert.True(t, users.HasColumn("email"))

	orders, ok := c.Lookup("sales", "orders")
	require.True(t, ok)
	require.Len(t, orders.ForeignKeys(), 1)
	assert.Equal(t, "users", orders.ForeignKeys()[0].TargetTable)

	assert.True(t, c.HasRoutine("refresh_stats"))
}

func TestDecode_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty document": "",
		"unknown key":    "tables:\n  - name: users\n    colums: []\n",
		"wrong shape":    "tables: users\n",
		"duplicate":      "tables:\n  - name: users\n  - name: Users\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidFeed)
		})
	}
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(feedYAML), 0o644))

	c, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestFileLoader_MissingFile(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidFeed)
}
