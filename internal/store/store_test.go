package store

import (
	"errors"
	"fmt"
	"testing"

	"sgp-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	util.SetLogger(zap.NewNop())
}

func TestListParamsValues(t *testing.T) {
	params := ListParams{
		Search:  " cimento ",
		Filters: map[string]string{"status": "pendente", " ": "ignored"},
		Page:    2,
		Limit:   50,
		Sort:    "-data_alerta",
	}

	q := params.Values()

	assert.Equal(t, "cimento", q.Get("search"))
	assert.Equal(t, "pendente", q.Get("status"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "50", q.Get("limit"))
	assert.Equal(t, "-data_alerta", q.Get("sort"))
	assert.Len(t, q, 5)

	assert.Empty(t, ListParams{}.Values().Encode())
}

func TestHTTPErrorIs(t *testing.T) {
	notFound := fmt.Errorf("get: %w", &HTTPError{StatusCode: 404, Message: "Not Found"})
	conflict := &HTTPError{StatusCode: 409, Code: "duplicate", Message: "exists"}
	server := &HTTPError{StatusCode: 500, Message: "boom"}

	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.True(t, errors.Is(conflict, ErrConflict))
	assert.False(t, errors.Is(server, ErrNotFound))
	assert.False(t, errors.Is(server, ErrConflict))
	assert.Equal(t, "http 409 duplicate: exists", conflict.Error())
	assert.Equal(t, "http 500: boom", server.Error())
}

func TestNew(t *testing.T) {
	rs, err := New("memory", Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, rs)

	rs, err = New("", Options{BaseURL: "http://store.local/"})
	require.NoError(t, err)
	require.IsType(t, &RESTClient{}, rs)
	assert.Equal(t, "http://store.local", rs.(*RESTClient).baseURL)

	_, err = New("mongo", Options{})
	assert.Error(t, err)
}
