package profile

import (
	"bytes"
	"sort"
)

func sortStrings(s []string) {
	sort.Strings(s)
}

// marshalStringArray renders keys as a TOML inline array of quoted strings,
// used by the set types' MarshalTOML implementations.
func marshalStringArray(keys []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteByte('"')
		for _, r := range k {
			if r == '"' || r == '\\' {
				buf.WriteByte('\\')
			}
			buf.WriteRune(r)
		}
		buf.WriteByte('"')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
