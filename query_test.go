package epgsql

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Online-GS/epgsql/codes"
	psqlerr "github.com/Online-GS/epgsql/errors"
	"github.com/Online-GS/epgsql/pkg/mock"
	pgproto "github.com/jackc/pgproto3/v2"
	"github.com/lib/pq/oid"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleQuery(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		query, ok := backend.Receive().(*pgproto.Query)
		assert.True(t, ok)
		assert.Equal(t, "SELECT 1", query.String)

		backend.RowDescription(mock.Column("?column?", uint32(oid.T_int4)))
		backend.DataRow("1")
		backend.Complete("SELECT 1")
		backend.Ready('I')
	})

	results, err := conn.SimpleQuery(TContext(t), "SELECT 1")
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	require.NoError(t, result.Err)
	require.Len(t, result.Columns, 1)
	assert.Equal(t, "?column?", result.Columns[0].Name)
	assert.Equal(t, oid.T_int4, result.Columns[0].Oid)
	assert.Equal(t, [][]any{{int32(1)}}, result.Rows)
	assert.Equal(t, int64(1), result.Count)
	assert.True(t, result.HasCount)
}

func TestSimpleQueryBatch(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		backend.Receive()

		backend.RowDescription(mock.Column("?column?", uint32(oid.T_int4)))
		backend.DataRow("1")
		backend.Complete("SELECT 1")

		backend.RowDescription(mock.Column("?column?", uint32(oid.T_int4)))
		backend.DataRow("2")
		backend.Complete("SELECT 1")

		backend.Ready('I')
	})

	results, err := conn.SimpleQuery(TContext(t), "SELECT 1; SELECT 2")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, [][]any{{int32(1)}}, results[0].Rows)
	assert.Equal(t, [][]any{{int32(2)}}, results[1].Rows)
}

func TestSimpleQueryBatchError(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		backend.Receive()

		backend.RowDescription(mock.Column("?column?", uint32(oid.T_int4)))
		backend.DataRow("1")
		backend.Complete("SELECT 1")

		backend.Error("22012", "division by zero")
		backend.Ready('I')
	})

	results, err := conn.SimpleQuery(TContext(t), "SELECT 1; SELECT 1/0")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Equal(t, codes.DivisionByZero, psqlerr.GetCode(results[1].Err))
}

func TestSimpleQueryEmpty(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		backend.Receive()
		backend.Send(&pgproto.EmptyQueryResponse{})
		backend.Ready('I')
	})

	results, err := conn.SimpleQuery(TContext(t), " ")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Rows)
	assert.False(t, results[0].HasCount)
}

func TestParameterStatusUpdate(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		backend.Receive()
		backend.Parameter(ParamClientEncoding, "latin1")
		backend.Complete("SET")
		backend.Ready('I')
	})

	results, err := conn.SimpleQuery(TContext(t), "SET client_encoding TO 'latin1'")
	require.NoError(t, err)
	require.Len(t, results, 1)

	value, has := conn.Parameter(ParamClientEncoding)
	assert.True(t, has)
	assert.Equal(t, "latin1", value)
}

// serveAnonymousParse replies to the Parse, Describe and Flush messages of an
// anonymous extended query preparing a single int4 parameter and a single
// int4 result column.
func serveAnonymousParse(t *testing.T, backend *mock.Backend) {
	_, ok := backend.Receive().(*pgproto.Parse)
	assert.True(t, ok)
	_, ok = backend.Receive().(*pgproto.Describe)
	assert.True(t, ok)
	_, ok = backend.Receive().(*pgproto.Flush)
	assert.True(t, ok)

	backend.Send(&pgproto.ParseComplete{})
	backend.Send(&pgproto.ParameterDescription{ParameterOIDs: []uint32{uint32(oid.T_int4)}})
	backend.RowDescription(mock.Column("?column?", uint32(oid.T_int4)))
}

func TestQuery(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		serveAnonymousParse(t, backend)

		bind, ok := backend.Receive().(*pgproto.Bind)
		require.True(t, ok)
		require.Len(t, bind.Parameters, 1)
		// int4 parameters travel in binary format
		assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x29}, bind.Parameters[0])
		assert.Equal(t, []int16{1}, bind.ResultFormatCodes)

		_, ok = backend.Receive().(*pgproto.Execute)
		assert.True(t, ok)
		_, ok = backend.Receive().(*pgproto.Close)
		assert.True(t, ok)
		_, ok = backend.Receive().(*pgproto.Sync)
		assert.True(t, ok)

		backend.Send(&pgproto.BindComplete{})
		backend.Send(&pgproto.DataRow{Values: [][]byte{{0x00, 0x00, 0x00, 0x2A}}})
		backend.Complete("SELECT 1")
		backend.Send(&pgproto.CloseComplete{})
		backend.Ready('I')
	})

	result, err := conn.Query(TContext(t), "SELECT $1::int + 1", 41)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{int32(42)}}, result.Rows)
	assert.Equal(t, int64(1), result.Count)
	assert.True(t, result.HasCount)
}

func TestQueryFloatDatetimes(t *testing.T) {
	t.Parallel()

	server := mock.NewServer(t, func(t *testing.T, backend *mock.Backend) {
		backend.Startup()
		backend.AuthOK()
		backend.Parameter("integer_datetimes", "off")
		backend.KeyData(tBackendPID, tBackendSecret)
		backend.Ready('I')

		_, ok := backend.Receive().(*pgproto.Parse)
		assert.True(t, ok)
		backend.Receive() // describe
		backend.Receive() // flush
		backend.Send(&pgproto.ParseComplete{})
		backend.Send(&pgproto.ParameterDescription{})
		backend.RowDescription(mock.Column("now", uint32(oid.T_timestamp)))

		for index := 0; index < 4; index++ {
			backend.Receive() // bind, execute, close, sync
		}

		// half a second past the Postgres epoch in float seconds
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, math.Float64bits(0.5))

		backend.Send(&pgproto.BindComplete{})
		backend.Send(&pgproto.DataRow{Values: [][]byte{value}})
		backend.Complete("SELECT 1")
		backend.Send(&pgproto.CloseComplete{})
		backend.Ready('I')
	})

	conn, err := Connect(TContext(t), server.Host(), "postgres", "password",
		Logger(slogt.New(t)), Port(server.Port()))
	require.NoError(t, err)
	defer conn.Close(TContext(t))

	result, err := conn.Query(TContext(t), "SELECT now()")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	expected := time.Date(2000, time.January, 1, 0, 0, 0, 500_000_000, time.UTC)
	assert.Equal(t, expected, result.Rows[0][0])
}

func TestQueryBackendError(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		serveAnonymousParse(t, backend)

		// consume the bind, execute, close and sync group before failing
		// the execution
		for index := 0; index < 4; index++ {
			backend.Receive()
		}

		backend.Send(&pgproto.BindComplete{})
		backend.Error("22012", "division by zero")
		backend.Ready('I')
	})

	_, err := conn.Query(TContext(t), "SELECT 1/$1::int", 0)
	require.Error(t, err)
	assert.Equal(t, codes.DivisionByZero, psqlerr.GetCode(err))
}

func TestQueryParseErrorRecovers(t *testing.T) {
	t.Parallel()

	conn := TConnect(t, func(t *testing.T, backend *mock.Backend) {
		// parse + describe + flush of the failing statement
		for index := 0; index < 3; index++ {
			backend.Receive()
		}

		backend.Error("42601", "syntax error at or near \"SELEC\"")

		// the recovery sync issued by Query
		for {
			if _, ok := backend.Receive().(*pgproto.Sync); ok {
				break
			}
		}
		backend.Ready('I')

		// the follow-up query succeeds
		serveAnonymousParse(t, backend)
		for index := 0; index < 4; index++ {
			backend.Receive()
		}

		backend.Send(&pgproto.BindComplete{})
		backend.Send(&pgproto.DataRow{Values: [][]byte{{0x00, 0x00, 0x00, 0x01}}})
		backend.Complete("SELECT 1")
		backend.Send(&pgproto.CloseComplete{})
		backend.Ready('I')
	})

	_, err := conn.Query(TContext(t), "SELEC 1")
	require.Error(t, err)
	assert.Equal(t, codes.Syntax, psqlerr.GetCode(err))

	result, err := conn.Query(TContext(t), "SELECT $1::int", 1)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int32(1)}}, result.Rows)
}
