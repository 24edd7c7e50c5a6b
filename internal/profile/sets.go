package profile

import "fmt"

// StringSet is serialized as a TOML array but held as a set in memory, so
// merging profiles doesn't need a separate dedup pass. BurntSushi/toml calls
// UnmarshalTOML with the already-decoded array value.
type StringSet map[string]struct{}

// UnmarshalTOML implements toml.Unmarshaler.
func (s *StringSet) UnmarshalTOML(data interface{}) error {
	items, ok := data.([]interface{})
	if !ok {
		return fmt.Errorf("profile: expected array, got %T", data)
	}
	set := make(StringSet, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return fmt.Errorf("profile: expected string in array, got %T", item)
		}
		set[str] = struct{}{}
	}
	*s = set
	return nil
}

// MarshalTOML implements toml.Marshaler, writing the set back out as a
// sorted array so serialized profiles are byte-stable.
func (s StringSet) MarshalTOML() ([]byte, error) {
	return marshalStringArray(sortedKeys(s))
}

func sortedKeys(s StringSet) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

// NamespaceSet is StringSet's counterpart for Namespace-keyed sets.
type NamespaceSet map[Namespace]struct{}

func (s *NamespaceSet) UnmarshalTOML(data interface{}) error {
	items, ok := data.([]interface{})
	if !ok {
		return fmt.Errorf("profile: expected array, got %T", data)
	}
	set := make(NamespaceSet, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return fmt.Errorf("profile: expected string in array, got %T", item)
		}
		set[Namespace(str)] = struct{}{}
	}
	*s = set
	return nil
}

func (s NamespaceSet) MarshalTOML() ([]byte, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, string(k))
	}
	sortStrings(keys)
	return marshalStringArray(keys)
}

// PortalSet is StringSet's counterpart for Portal-keyed sets.
type PortalSet map[Portal]struct{}

func (s *PortalSet) UnmarshalTOML(data interface{}) error {
	items, ok := data.([]interface{})
	if !ok {
		return fmt.Errorf("profile: expected array, got %T", data)
	}
	set := make(PortalSet, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return fmt.Errorf("profile: expected string in array, got %T", item)
		}
		set[Portal(str)] = struct{}{}
	}
	*s = set
	return nil
}

func (s PortalSet) MarshalTOML() ([]byte, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, string(k))
	}
	sortStrings(keys)
	return marshalStringArray(keys)
}
