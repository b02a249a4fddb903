package pgxutil

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToPgxTxOptions(t *testing.T) {
	assert.Equal(t, pgx.TxOptions{}, toPgxTxOptions(nil))

	tests := []struct {
		name string
		opts sql.TxOptions
		want pgx.TxOptions
	}{
		{"default", sql.TxOptions{}, pgx.TxOptions{AccessMode: pgx.ReadWrite}},
		{"serializable", sql.TxOptions{Isolation: sql.LevelSerializable}, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}},
		{"snapshot", sql.TxOptions{Isolation: sql.LevelSnapshot}, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}},
		{"read only", sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}},
		{"unknown level", sql.TxOptions{Isolation: sql.IsolationLevel(99)}, pgx.TxOptions{AccessMode: pgx.ReadWrite}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			assert.Equal(t, tt.want, toPgxTxOptions(&opts))
		})
	}
}
