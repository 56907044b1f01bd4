package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRowsIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "leads", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Inserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"lead-1", "Blue Parrot"}, {"lead-2", "Red Fox"}}
	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, []string{"id", "business_name"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "leads", []string{"id", "business_name"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, []string{"id"}).
		WillReturnError(eris.New("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "leads", []string{"id"}, [][]any{{"lead-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO leads")
}
