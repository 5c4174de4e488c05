package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

type row struct {
	ID int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:repo_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&row{}))
	return conn
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)

	assert.Same(t, db, base.DB(nil))
}

func TestBaseBind(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	assert.Same(t, db, base.Bind(nil).db)

	tx := db.Begin()
	defer tx.Rollback()
	assert.Same(t, tx, base.Bind(tx).db)
}

func TestPaginate(t *testing.T) {
	db := newTestDB(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, db.Create(&row{ID: i}).Error)
	}

	var rows []row
	page := pagination.Params{Take: 2, Skip: 3}.Normalize(pagination.DefaultTake)
	require.NoError(t, db.Scopes(Paginate(page)).Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].ID)
	assert.Equal(t, 5, rows[1].ID)
}
