package qdrant

// Condition matches a payload key against one value.
type Condition struct {
	Key   string
	Value any
}

// Filter is a conjunction of payload conditions, always scoped to one namespace by the store.
type Filter struct {
	Must []Condition
}

func Match(key string, value any) Condition { return Condition{Key: key, Value: value} }

func (f *Filter) toQdrant(qualifiedNS string) map[string]any {
	must := []any{matchCondition(payloadNamespaceKey, qualifiedNS)}
	if f != nil {
		for _, c := range f.Must {
			if c.Key == "" {
				continue
			}
			must = append(must, matchCondition(c.Key, c.Value))
		}
	}
	return map[string]any{"must": must}
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}
