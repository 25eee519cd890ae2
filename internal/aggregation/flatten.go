// Package aggregation turns nested search-engine aggregation responses into flat rows.
package aggregation

import (
	"encoding/json"
	"fmt"

	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/tidwall/gjson"
)

// Element describes one depth of the aggregation tree.
type Element struct {
	// Name is the sub-aggregation key in the response.
	Name string `json:"name" yaml:"name" toml:"name" validate:"required_unless=Metric true"`
	// As is the output property receiving the bucket key. Defaults to "key" at
	// depth 0 and to Name below.
	As string `json:"as,omitempty" yaml:"as,omitempty" toml:"as,omitempty"`
	// Metric marks the terminal element holding the computed value.
	Metric bool `json:"metric,omitempty" yaml:"metric,omitempty" toml:"metric,omitempty"`
}

func (e Element) outputProperty(depth int) string {
	if e.As != "" {
		return e.As
	}
	if depth == 0 {
		return KeyField
	}
	return e.Name
}

// CheckResponse reports a typed data error when the raw response is unusable.
// Empty bucket lists are not errors.
func CheckResponse(response []byte, elements []Element) error {
	if !gjson.ValidBytes(response) {
		return reperrors.WrapDataError("check_response", reperrors.ErrMalformedResponse)
	}
	root := gjson.ParseBytes(response)
	if !root.IsObject() {
		return reperrors.WrapDataError("check_response",
			fmt.Errorf("%w: expected an object", reperrors.ErrMalformedResponse))
	}

	shards := root.Get("_shards")
	if shards.Exists() && shards.Get("failed").Int() > 0 && shards.Get("successful").Int() == 0 {
		return reperrors.WrapDataError("check_response",
			fmt.Errorf("%w: %d shard(s) failed", reperrors.ErrShardFailure, shards.Get("failed").Int()))
	}

	if !needsAggregations(elements) || root.Get("aggregations").Exists() {
		return nil
	}
	if HitsTotal(response) == 0 {
		return reperrors.WrapDataError("check_response", reperrors.ErrZeroHits)
	}
	return reperrors.WrapDataError("check_response", reperrors.ErrNoAggregations)
}

func needsAggregations(elements []Element) bool {
	for _, el := range elements {
		if !el.Metric || el.Name != "" {
			return true
		}
	}
	return false
}

// HitsTotal returns the document count of the response, for both the legacy
// numeric form and the {value, relation} object.
func HitsTotal(response []byte) int64 {
	total := gjson.GetBytes(response, "hits.total")
	if total.IsObject() {
		return total.Get("value").Int()
	}
	return total.Int()
}

// Flatten converts the response aggregations into rows following elements.
func Flatten(response []byte, elements []Element) ([]Row, error) {
	if err := CheckResponse(response, elements); err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return []Row{{ValueField: 0}}, nil
	}

	root := gjson.ParseBytes(response)
	node := root.Get("aggregations")
	if !node.Exists() {
		node = gjson.Result{}
	}
	count := HitsTotal(response)
	return flattenNode(node, count, elements, 0), nil
}

func flattenNode(node gjson.Result, docCount int64, elements []Element, depth int) []Row {
	el := elements[0]

	if el.Metric {
		return []Row{{ValueField: metricValue(node, el.Name, docCount)}}
	}

	agg, ok := child(node, el.Name)
	if !ok {
		return []Row{}
	}

	prop := el.outputProperty(depth)
	rows := []Row{}
	for _, bucket := range normalizeBuckets(agg.Get("buckets")) {
		key := bucketKey(bucket)
		bucketCount := bucket.Get("doc_count").Int()

		var children []Row
		if len(elements) == 1 {
			children = []Row{{ValueField: bucketCount}}
		} else {
			children = flattenNode(bucket, bucketCount, elements[1:], depth+1)
		}
		for _, row := range children {
			row[prop] = key
			rows = append(rows, row)
		}
	}
	return rows
}

func metricValue(node gjson.Result, name string, docCount int64) any {
	if name == "" {
		return docCount
	}
	agg, ok := child(node, name)
	if !ok {
		return docCount
	}
	value := agg.Get("value")
	if !value.Exists() {
		return docCount
	}
	switch value.Type {
	case gjson.Number:
		return value.Float()
	case gjson.Null:
		return 0.0
	default:
		return value.Value()
	}
}

func child(node gjson.Result, name string) (gjson.Result, bool) {
	if !node.IsObject() {
		return gjson.Result{}, false
	}
	res, ok := node.Map()[name]
	return res, ok
}

type keyedBucket struct {
	key    string
	bucket gjson.Result
}

// normalizeBuckets converts array or object-keyed bucket collections into an
// ordered slice. Object keys become the bucket key.
func normalizeBuckets(buckets gjson.Result) []gjson.Result {
	switch {
	case buckets.IsArray():
		return buckets.Array()
	case buckets.IsObject():
		var keyed []keyedBucket
		buckets.ForEach(func(key, value gjson.Result) bool {
			keyed = append(keyed, keyedBucket{key: key.String(), bucket: value})
			return true
		})
		out := make([]gjson.Result, 0, len(keyed))
		for _, kb := range keyed {
			out = append(out, withKey(kb.bucket, kb.key))
		}
		return out
	default:
		return nil
	}
}

// withKey injects a "key" property into a keyed bucket object.
func withKey(bucket gjson.Result, key string) gjson.Result {
	if bucket.Get("key").Exists() || !bucket.IsObject() {
		return bucket
	}
	quoted, _ := json.Marshal(key)
	if len(bucket.Map()) == 0 {
		return gjson.Parse(`{"key":` + string(quoted) + `}`)
	}
	// Raw starts with the opening brace
	return gjson.Parse(`{"key":` + string(quoted) + "," + bucket.Raw[1:])
}

func bucketKey(bucket gjson.Result) any {
	if s := bucket.Get("key_as_string"); s.Exists() {
		return s.String()
	}
	key := bucket.Get("key")
	switch key.Type {
	case gjson.Number:
		if key.Float() == float64(key.Int()) {
			return key.Int()
		}
		return key.Float()
	case gjson.String:
		return key.String()
	case gjson.True, gjson.False:
		return key.Bool()
	case gjson.Null:
		return nil
	default:
		return key.Value()
	}
}
