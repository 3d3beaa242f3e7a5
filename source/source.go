package source

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Source is a stored document, available either as raw JSON bytes or as a
// parsed map. Parsing happens at most once and only when the map is needed.
type Source interface {
	// Map returns the document as nested maps.
	Map() (map[string]interface{}, error)
	// Bytes returns the raw document, or nil when it was built from a map.
	Bytes() []byte
	// Extract returns all values stored under a dotted path.
	Extract(path string) ([]interface{}, error)
}

// Empty is a source without any fields.
var Empty Source = FromMap(map[string]interface{}{})

// FromMap wraps an already parsed document.
func FromMap(doc map[string]interface{}) Source {
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return &mapSource{doc: doc}
}

// FromBytes wraps a raw JSON document.
func FromBytes(raw []byte) Source {
	return &bytesSource{raw: raw}
}

type mapSource struct {
	doc map[string]interface{}
}

func (s *mapSource) Map() (map[string]interface{}, error) {
	return s.doc, nil
}

func (s *mapSource) Bytes() []byte {
	return nil
}

func (s *mapSource) Extract(path string) ([]interface{}, error) {
	return ExtractValues(s.doc, path), nil
}

type bytesSource struct {
	raw []byte

	once   sync.Once
	parsed map[string]interface{}
	err    error
}

func (s *bytesSource) Map() (map[string]interface{}, error) {
	s.once.Do(func() {
		if !gjson.ValidBytes(s.raw) {
			s.err = fmt.Errorf("source is not valid JSON")
			return
		}
		result := gjson.ParseBytes(s.raw)
		if !result.IsObject() {
			s.err = fmt.Errorf("source must be a JSON object, got %s", result.Type)
			return
		}
		doc, _ := resultToInterface(result).(map[string]interface{})
		s.parsed = doc
	})
	return s.parsed, s.err
}

func (s *bytesSource) Bytes() []byte {
	return s.raw
}

func (s *bytesSource) Extract(path string) ([]interface{}, error) {
	// A top-level scalar can be answered straight from the bytes. Deeper
	// paths may also match literal dotted keys or array elements, so they
	// go through the parsed map.
	if topLevelKey(path) && gjson.ValidBytes(s.raw) && gjson.ParseBytes(s.raw).IsObject() {
		result := gjson.GetBytes(s.raw, path)
		switch result.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			return []interface{}{resultToInterface(result)}, nil
		}
	}
	doc, err := s.Map()
	if err != nil {
		return nil, err
	}
	return ExtractValues(doc, path), nil
}

func topLevelKey(path string) bool {
	return path != "" && !strings.ContainsAny(path, `.*?#|@\!=<>%[]{}()`)
}

// ExtractValues collects the values found under path. Both nested objects and
// literal dotted keys are followed; arrays along the way are flattened and
// null values are dropped.
func ExtractValues(doc map[string]interface{}, path string) []interface{} {
	if doc == nil || path == "" {
		return nil
	}
	var values []interface{}
	extract(doc, strings.Split(path, "."), &values)
	return values
}

func extract(node map[string]interface{}, parts []string, out *[]interface{}) {
	for i := 1; i <= len(parts); i++ {
		key := strings.Join(parts[:i], ".")
		value, ok := node[key]
		if !ok {
			continue
		}
		rest := parts[i:]
		if len(rest) == 0 {
			appendLeaf(value, out)
			continue
		}
		descend(value, rest, out)
	}
}

func descend(value interface{}, rest []string, out *[]interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		extract(v, rest, out)
	case []interface{}:
		for _, item := range v {
			descend(item, rest, out)
		}
	}
}

func appendLeaf(value interface{}, out *[]interface{}) {
	switch v := value.(type) {
	case nil:
	case []interface{}:
		for _, item := range v {
			appendLeaf(item, out)
		}
	default:
		*out = append(*out, v)
	}
}

func resultToInterface(result gjson.Result) interface{} {
	switch result.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if result.Float() == float64(result.Int()) {
			return result.Int()
		}
		return result.Float()
	case gjson.String:
		return result.String()
	case gjson.JSON:
		if result.IsArray() {
			arr := result.Array()
			items := make([]interface{}, len(arr))
			for i, v := range arr {
				items[i] = resultToInterface(v)
			}
			return items
		}
		m := result.Map()
		obj := make(map[string]interface{}, len(m))
		for k, v := range m {
			obj[k] = resultToInterface(v)
		}
		return obj
	default:
		return nil
	}
}
