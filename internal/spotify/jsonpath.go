// file: internal/spotify/jsonpath.go

package spotify

import (
	"fmt"
	"strconv"
	"strings"
)

// traversePath navigates decoded JSON using dot notation.
// Object properties are addressed by key and array elements by index:
//   - "item.name" → object property access
//   - "item.album.images.0.url" → array index access
func traversePath(data interface{}, pathStr string) (interface{}, error) {
	if pathStr == "" {
		return data, nil
	}

	current := data
	for i, segment := range strings.Split(pathStr, ".") {
		if segment == "" {
			return nil, fmt.Errorf("empty path segment at position %d", i)
		}

		switch v := current.(type) {
		case map[string]interface{}:
			value, exists := v[segment]
			if !exists {
				return nil, fmt.Errorf("key '%s' not found at path position %d", segment, i)
			}
			current = value

		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil {
				return nil, fmt.Errorf("invalid array index '%s' at path position %d", segment, i)
			}
			if index < 0 || index >= len(v) {
				return nil, fmt.Errorf("array index %d out of bounds at path position %d (array length: %d)",
					index, i, len(v))
			}
			current = v[index]

		case nil:
			return nil, fmt.Errorf("cannot traverse into nil at path position %d (segment: '%s')", i, segment)

		default:
			return nil, fmt.Errorf("cannot traverse into %T at path position %d (segment: '%s')", current, i, segment)
		}
	}

	return current, nil
}

// lookupString returns the string at path, or "" when the path is absent or
// holds something other than a string
func lookupString(data interface{}, pathStr string) string {
	value, err := traversePath(data, pathStr)
	if err != nil {
		return ""
	}
	s, _ := value.(string)
	return s
}

// lookupBool returns the bool at path, or false when absent
func lookupBool(data interface{}, pathStr string) bool {
	value, err := traversePath(data, pathStr)
	if err != nil {
		return false
	}
	b, _ := value.(bool)
	return b
}
