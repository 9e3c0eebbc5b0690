package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "writeups:records"

func encoded(t *testing.T, r Record) string {
	t.Helper()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return string(data)
}

func TestRedisStore_List(t *testing.T) {
	a, b := record("a.pdf", 1), record("b.pdf", 2)

	testCases := []struct {
		name    string
		mocker  func(mock redismock.ClientMock)
		want    []Record
		wantErr bool
	}{
		{
			name: "empty",
			mocker: func(mock redismock.ClientMock) {
				mock.ExpectLRange(testKey, 0, -1).SetVal([]string{})
			},
			want: []Record{},
		},
		{
			name: "in order",
			mocker: func(mock redismock.ClientMock) {
				mock.ExpectLRange(testKey, 0, -1).SetVal([]string{encoded(t, a), encoded(t, b)})
			},
			want: []Record{a, b},
		},
		{
			name: "invalid json",
			mocker: func(mock redismock.ClientMock) {
				mock.ExpectLRange(testKey, 0, -1).SetVal([]string{"invalid json"})
			},
			wantErr: true,
		},
		{
			name: "redis error",
			mocker: func(mock redismock.ClientMock) {
				mock.ExpectLRange(testKey, 0, -1).SetErr(errors.New("redis error"))
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, mock := redismock.NewClientMock()
			store := &RedisStore{client: client, key: testKey}
			tc.mocker(mock)

			got, err := store.List(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Len(t, got, len(tc.want))
				for i := range tc.want {
					assert.Equal(t, tc.want[i].Filename, got[i].Filename)
					assert.True(t, tc.want[i].UploadDate.Equal(got[i].UploadDate))
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisStore_Append(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := &RedisStore{client: client, key: testKey}
	r := record("a.pdf", 1)

	mock.ExpectRPush(testKey, encoded(t, r)).SetVal(1)
	require.NoError(t, store.Append(context.Background(), r))

	mock.ExpectRPush(testKey, encoded(t, r)).SetErr(errors.New("redis error"))
	assert.Error(t, store.Append(context.Background(), r))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Remove(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := &RedisStore{client: client, key: testKey}
	a, b := record("a.pdf", 1), record("b.pdf", 2)

	mock.ExpectLRange(testKey, 0, -1).SetVal([]string{encoded(t, a), encoded(t, b), encoded(t, a)})
	mock.ExpectLRem(testKey, 0, encoded(t, a)).SetVal(2)

	removed, err := store.Remove(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	mock.ExpectLRange(testKey, 0, -1).SetVal([]string{encoded(t, b)})
	removed, err = store.Remove(context.Background(), "missing.pdf")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	assert.NoError(t, mock.ExpectationsWereMet())
}
