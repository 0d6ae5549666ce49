package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- leading comment
CREATE TABLE a (x UInt64) ENGINE = MergeTree() ORDER BY x;

-- second
CREATE TABLE b (y String)
ENGINE = MergeTree() ORDER BY y;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt64) ENGINE = MergeTree() ORDER BY x", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'a''b'; SELECT 1;`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)

	_, err = databaseFromDSN("clickhouse://localhost:9000/bad-name")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	chFiles, err := migrationFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_transfers.sql", "002_user_stats.sql"}, chFiles)

	for _, f := range chFiles {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+f)
		require.NoError(t, err)
		assert.NoError(t, validateNoSemicolonInStrings(string(data)), f)
		assert.Len(t, splitStatements(string(data)), 1, f)
	}

	pgFiles, err := migrationFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_transfers.sql"}, pgFiles)
}
