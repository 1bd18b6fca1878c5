package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var replaceCfg = ReplaceConfig{
	Table:     "councillors",
	KeyColumn: "council",
	Columns:   []string{"council", "identifier", "url"},
}

func TestReplaceRows_DeletesThenCopies(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "councillors" WHERE "council" = \$1`).
		WithArgs("KIR").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"councillors"}, replaceCfg.Columns).WillReturnResult(2)
	mock.ExpectCommit()

	rows := [][]any{{"KIR", "101", "https://x/101"}, {"KIR", "102", "https://x/102"}}
	n, err := ReplaceRows(context.Background(), mock, replaceCfg, "KIR", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_EmptyRowsOnlyDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "councillors"`).
		WithArgs("KIR").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCommit()

	n, err := ReplaceRows(context.Background(), mock, replaceCfg, "KIR", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "councillors"`).
		WithArgs("KIR").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"councillors"}, replaceCfg.Columns).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = ReplaceRows(context.Background(), mock, replaceCfg, "KIR", [][]any{{"KIR", "1", "u"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO councillors")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_Validation(t *testing.T) {
	_, err := ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "t"}, "k", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key column")

	_, err = ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "t", KeyColumn: "k"}, "k", [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}
