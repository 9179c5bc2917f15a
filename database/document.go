package database

import (
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-cache/types"
)

// timestamps hands out strictly increasing unix microseconds so documents
// created in one batch keep their order.
type timestamps struct {
	last atomic.Int64
}

func (ts *timestamps) next() int64 {
	for {
		last := ts.last.Load()

		now := time.Now().UnixMicro()
		if now <= last {
			now = last + 1
		}

		if ts.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

func toDocument(data interface{}) (map[string]interface{}, error) {
	document, ok := data.(map[string]interface{})
	if !ok {
		return nil, types.Errorf(types.ErrInvalidParameter, "document must be a map, got %T", data)
	}

	return document, nil
}

func deepCopy(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))

	for k, v := range src {
		if nested, ok := v.(map[string]interface{}); ok {
			dst[k] = deepCopy(nested)
			continue
		}
		dst[k] = v
	}

	return dst
}

// applyUpdate supports $set, $unset and $inc. Other keys are assigned as is.
func applyUpdate(doc map[string]interface{}, update map[string]interface{}) {
	for op, value := range update {
		switch op {
		case "$set":
			if setMap, ok := value.(map[string]interface{}); ok {
				for key, val := range setMap {
					doc[key] = val
				}
			}
		case "$unset":
			if unsetMap, ok := value.(map[string]interface{}); ok {
				for key := range unsetMap {
					delete(doc, key)
				}
			}
		case "$inc":
			if incMap, ok := value.(map[string]interface{}); ok {
				for key, val := range incMap {
					incVal, ok := toFloat64(val)
					if !ok {
						continue
					}

					current, _ := toFloat64(doc[key])
					doc[key] = current + incVal
				}
			}
		default:
			doc[op] = value
		}
	}
}

func matchesFilter(doc map[string]interface{}, filter map[string]interface{}) bool {
	for key, value := range filter {
		docValue, exists := lookup(doc, key)
		if !matchesValue(docValue, exists, value) {
			return false
		}
	}

	return true
}

func lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = doc

	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}

		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func matchesValue(docValue interface{}, exists bool, filterValue interface{}) bool {
	operators, ok := filterValue.(map[string]interface{})
	if !ok {
		return exists && equal(docValue, filterValue)
	}

	for op, value := range operators {
		var matched bool

		switch op {
		case "$eq":
			matched = exists && equal(docValue, value)
		case "$ne":
			matched = !exists || !equal(docValue, value)
		case "$gt":
			matched = exists && compare(docValue, value) > 0
		case "$gte":
			matched = exists && compare(docValue, value) >= 0
		case "$lt":
			matched = exists && compare(docValue, value) < 0
		case "$lte":
			matched = exists && compare(docValue, value) <= 0
		case "$in":
			matched = exists && contains(value, docValue)
		case "$nin":
			matched = !exists || !contains(value, docValue)
		case "$exists":
			want, _ := value.(bool)
			matched = exists == want
		}

		if !matched {
			return false
		}
	}

	return true
}

func contains(list interface{}, value interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}

	for _, item := range items {
		if equal(item, value) {
			return true
		}
	}

	return false
}

func equal(a, b interface{}) bool {
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}

	return a == b
}

// compare orders numbers numerically and everything else by its string form.
func compare(a, b interface{}) int {
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)

	if aOk && bOk {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}

	aStr, _ := a.(string)
	bStr, _ := b.(string)
	return strings.Compare(aStr, bStr)
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// sortDocuments applies sort fields in name order; direction < 0 is descending.
func sortDocuments(docs []map[string]interface{}, order map[string]int) {
	fields := make([]string, 0, len(order))
	for field := range order {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range fields {
			a, _ := lookup(docs[i], field)
			b, _ := lookup(docs[j], field)

			c := compare(a, b)
			if c == 0 {
				continue
			}

			if order[field] < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
