package aggregation

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nestedResponse builds a terms aggregation "by_platform" with n buckets, each
// holding m "by_type" sub-buckets.
func nestedResponse(n, m int) []byte {
	var top []string
	for i := 0; i < n; i++ {
		var sub []string
		for j := 0; j < m; j++ {
			sub = append(sub, fmt.Sprintf(`{"key":"type-%d","doc_count":%d}`, j, (i+1)*(j+1)))
		}
		top = append(top, fmt.Sprintf(`{"key":"platform-%d","doc_count":%d,"by_type":{"buckets":[%s]}}`,
			i, 100+i, strings.Join(sub, ",")))
	}
	return []byte(fmt.Sprintf(`{"hits":{"total":{"value":1000,"relation":"eq"}},"aggregations":{"by_platform":{"buckets":[%s]}}}`,
		strings.Join(top, ",")))
}

func TestFlattenTwoDimensions(t *testing.T) {
	elements := []Element{
		{Name: "by_platform"},
		{Name: "by_type", As: "type"},
		{Metric: true},
	}

	rows, err := Flatten(nestedResponse(3, 4), elements)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	seen := make(map[string]bool)
	for _, row := range rows {
		pair := row.String(KeyField) + "/" + row.String("type")
		assert.False(t, seen[pair], "duplicate pair %s", pair)
		seen[pair] = true
	}
	assert.True(t, seen["platform-2/type-3"])

	last := rows[len(rows)-1]
	assert.Equal(t, "platform-2", last[KeyField])
	assert.Equal(t, "type-3", last["type"])
	v, ok := last.Float(ValueField)
	require.True(t, ok)
	assert.Equal(t, 12.0, v)
}

func TestFlattenMetricTerminalUsesAggregationValue(t *testing.T) {
	resp := []byte(`{"hits":{"total":50},"aggregations":{
		"by_day":{"buckets":[
			{"key":1672531200000,"key_as_string":"2023-01-01","doc_count":5,"sum":{"value":12.5}},
			{"key":1672617600000,"key_as_string":"2023-01-02","doc_count":3,"sum":{"value":null}}
		]}}}`)

	rows, err := Flatten(resp, []Element{{Name: "by_day"}, {Name: "sum", Metric: true}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2023-01-01", rows[0][KeyField])
	assert.Equal(t, 12.5, rows[0][ValueField])
	assert.Equal(t, 0.0, rows[1][ValueField])
}

func TestFlattenMetricOnly(t *testing.T) {
	t.Run("aggregation value", func(t *testing.T) {
		resp := []byte(`{"hits":{"total":{"value":42}},"aggregations":{"unique":{"value":17}}}`)
		rows, err := Flatten(resp, []Element{{Name: "unique", Metric: true}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 17.0, rows[0][ValueField])
	})

	t.Run("document count", func(t *testing.T) {
		resp := []byte(`{"hits":{"total":{"value":42}}}`)
		rows, err := Flatten(resp, []Element{{Metric: true}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(42), rows[0][ValueField])
	})

	t.Run("metric missing falls back to count", func(t *testing.T) {
		resp := []byte(`{"hits":{"total":7},"aggregations":{}}`)
		rows, err := Flatten(resp, []Element{{Name: "unique", Metric: true}})
		require.NoError(t, err)
		assert.Equal(t, int64(7), rows[0][ValueField])
	})
}

func TestFlattenEdgeCases(t *testing.T) {
	resp := []byte(`{"hits":{"total":3},"aggregations":{"a":{"buckets":[]}}}`)

	rows, err := Flatten(resp, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0][ValueField])

	rows, err = Flatten(resp, []Element{{Name: "missing"}, {Metric: true}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = Flatten(resp, []Element{{Name: "a"}, {Metric: true}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFlattenKeyedBuckets(t *testing.T) {
	resp := []byte(`{"hits":{"total":9},"aggregations":{"status":{"buckets":{
		"ok":{"doc_count":6},
		"error":{"doc_count":3}
	}}}}`)

	rows, err := Flatten(resp, []Element{{Name: "status"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ok", rows[0][KeyField])
	assert.Equal(t, int64(6), rows[0][ValueField])
	assert.Equal(t, "error", rows[1][KeyField])
}

func TestCheckResponse(t *testing.T) {
	elements := []Element{{Name: "by_platform"}, {Metric: true}}

	tests := []struct {
		name string
		resp string
		want error
	}{
		{"malformed", `{"hits":`, reperrors.ErrMalformedResponse},
		{"not an object", `[1,2]`, reperrors.ErrMalformedResponse},
		{"shard failure", `{"_shards":{"total":2,"successful":0,"failed":2},"hits":{"total":0}}`, reperrors.ErrShardFailure},
		{"zero hits", `{"hits":{"total":{"value":0}}}`, reperrors.ErrZeroHits},
		{"no aggregations", `{"hits":{"total":{"value":5}}}`, reperrors.ErrNoAggregations},
		{"partial shard failure is usable", `{"_shards":{"successful":1,"failed":1},"hits":{"total":5},"aggregations":{}}`, nil},
		{"empty result is fine", `{"hits":{"total":0},"aggregations":{"by_platform":{"buckets":[]}}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckResponse([]byte(tt.resp), elements)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, reperrors.IsDataError(err))
		})
	}
}

func TestSortRows(t *testing.T) {
	rows := []Row{
		{KeyField: "b", ValueField: 10},
		{KeyField: "a", ValueField: 2.5},
		{KeyField: "c", ValueField: "30"},
	}

	asc := SortRows(rows, "asc", ValueField)
	assert.Equal(t, []any{"a", "b", "c"}, []any{asc[0][KeyField], asc[1][KeyField], asc[2][KeyField]})

	desc := SortRows(rows, "DESC", "")
	assert.Equal(t, "c", desc[0][KeyField])

	byKey := SortRows(rows, "desc", KeyField)
	assert.Equal(t, "c", byKey[0][KeyField])
	assert.Equal(t, "a", byKey[2][KeyField])

	unchanged := SortRows(rows, "", ValueField)
	assert.Equal(t, "b", unchanged[0][KeyField])
	// input is not reordered
	assert.Equal(t, "b", rows[0][KeyField])
}

func TestFields(t *testing.T) {
	rows := []Row{
		{KeyField: "x", ValueField: 1, "type": "t"},
		{KeyField: "y", ValueField: 2, "platform": "p", "_dataLabel": "2"},
	}
	assert.Equal(t, []string{KeyField, "platform", "type", ValueField}, Fields(rows))
}
