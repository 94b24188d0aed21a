package checkpoint

import "strings"

// keyPrefix namespaces every checkpoint key in Redis.
const keyPrefix = "pure:checkpoint"

// Key identifies one checkpointed change feed.
type Key struct {
	// Name is chosen by the caller, e.g. "<domain>:<job>".
	Name string
}

// String generates the storage key. Surrounding whitespace and colons in
// Name are trimmed.
func (k Key) String() string {
	name := strings.Trim(strings.TrimSpace(k.Name), ":")
	if name == "" {
		return keyPrefix + ":default"
	}
	return keyPrefix + ":" + name
}
