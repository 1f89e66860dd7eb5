package cfapi

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Params is the parameter bag of a single API call.
type Params map[string]interface{}

// encodeQuery renders params the way form-style query builders do:
// keys sorted, nested maps and slices flattened as key[sub]=v and key[0]=v,
// booleans as 1/0, nil values dropped.
func encodeQuery(params Params) string {
	var pairs []string
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = appendPairs(pairs, k, params[k])
	}
	return strings.Join(pairs, "&")
}

func appendPairs(pairs []string, key string, value interface{}) []string {
	if value == nil {
		return pairs
	}

	switch v := value.(type) {
	case string:
		return append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(v))
	case bool:
		if v {
			return append(pairs, url.QueryEscape(key)+"=1")
		}
		return append(pairs, url.QueryEscape(key)+"=0")
	case Params:
		return appendMap(pairs, key, map[string]interface{}(v))
	case map[string]interface{}:
		return appendMap(pairs, key, v)
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for k, s := range v {
			m[k] = s
		}
		return appendMap(pairs, key, m)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			pairs = appendPairs(pairs, key+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface())
		}
		return pairs
	case reflect.Ptr:
		if rv.IsNil() {
			return pairs
		}
		return appendPairs(pairs, key, rv.Elem().Interface())
	}

	return append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(fmt.Sprint(value)))
}

func appendMap(pairs []string, key string, m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = appendPairs(pairs, key+"["+k+"]", m[k])
	}
	return pairs
}
