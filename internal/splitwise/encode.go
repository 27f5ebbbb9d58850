package splitwise

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// encodeForm flattens a nested body into the provider's form encoding:
// slices become key[idx] and maps become key[field], recursively, so
// {"users": [{"user_id": 5}]} encodes as users[0][user_id]=5.
//
// Map keys are encoded in sorted order so output is deterministic.
func encodeForm(form url.Values, prefix string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encodeForm(form, childKey(prefix, k), v[k])
		}
	case []any:
		for i, item := range v {
			encodeForm(form, childKey(prefix, strconv.Itoa(i)), item)
		}
	case string:
		appendScalar(form, prefix, v)
	case bool:
		appendScalar(form, prefix, strconv.FormatBool(v))
	case int:
		appendScalar(form, prefix, strconv.Itoa(v))
	case int64:
		appendScalar(form, prefix, strconv.FormatInt(v, 10))
	case float64:
		appendScalar(form, prefix, strconv.FormatFloat(v, 'f', -1, 64))
	default:
		appendScalar(form, prefix, fmt.Sprint(v))
	}
}

func childKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "[" + key + "]"
}

func appendScalar(form url.Values, key, value string) {
	if key == "" {
		return
	}
	form.Add(key, value)
}
