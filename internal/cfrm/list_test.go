package cfrm

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bareCategories     = `[{"id":1,"name":"Information"},{"id":2,"name":"Plainte"}]`
	envelopeCategories = `{"count":2,"next":null,"previous":null,"results":[{"id":1,"name":"Information"},{"id":2,"name":"Plainte"}]}`
)

func TestListResult_ShapesNormalizeToSameItems(t *testing.T) {
	var bare, env ListResult[Category]
	require.NoError(t, json.Unmarshal([]byte(bareCategories), &bare))
	require.NoError(t, json.Unmarshal([]byte(envelopeCategories), &env))

	if diff := cmp.Diff(bare.Items(), env.Items()); diff != "" {
		t.Fatalf("items differ (-bare +envelope):\n%s", diff)
	}

	assert.Equal(t, 2, bare.Count())
	assert.Equal(t, 2, env.Count())

	_, paged := bare.Page()
	assert.False(t, paged)
	_, paged = env.Page()
	assert.True(t, paged)
}

func TestListResult_NormalizeIsIdempotent(t *testing.T) {
	var first ListResult[Category]
	require.NoError(t, json.Unmarshal([]byte(envelopeCategories), &first))

	b, err := json.Marshal(first.Items())
	require.NoError(t, err)

	var second ListResult[Category]
	require.NoError(t, json.Unmarshal(b, &second))

	if diff := cmp.Diff(first.Items(), second.Items()); diff != "" {
		t.Fatalf("renormalized items differ:\n%s", diff)
	}
}

func TestListResult_EmptyShapes(t *testing.T) {
	for _, body := range []string{`null`, `[]`, `{"count":0,"results":[]}`, `{"count":0}`} {
		var l ListResult[Ticket]
		require.NoError(t, json.Unmarshal([]byte(body), &l), body)
		assert.NotNil(t, l.Items(), body)
		assert.Empty(t, l.Items(), body)
	}
}

func TestListResult_RejectsScalars(t *testing.T) {
	var l ListResult[Category]
	assert.Error(t, json.Unmarshal([]byte(`"oops"`), &l))
}

func TestListResult_PageLinks(t *testing.T) {
	var l ListResult[Category]
	require.NoError(t, json.Unmarshal([]byte(`{"count":45,"next":"/api/v1/categories/?page=3","previous":"/api/v1/categories/?page=1","results":[]}`), &l))

	assert.True(t, l.HasNext())
	assert.True(t, l.HasPrevious())
	assert.Equal(t, 45, l.Count())

	bare := NewBareList([]Category{{Id: "1"}})
	assert.False(t, bare.HasNext())
	assert.Equal(t, 1, bare.Count())
}

func TestListResult_MarshalKeepsShape(t *testing.T) {
	b, err := json.Marshal(NewBareList[Category](nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	b, err = json.Marshal(NewPaginatedList(Paginated[Category]{Results: []Category{{Id: "1", Name: "A"}}, Count: 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[{"id":"1","name":"A","description":"","is_sensitive":false}],"count":1,"next":"","previous":""}`, string(b))
}
