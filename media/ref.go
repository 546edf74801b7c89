package media

import "strings"

var ephemeralSchemes = []string{"data:", "blob:", "file:", "content:", "ph:"}

// IsDurable reports whether ref is a URL that stays valid on any device.
func IsDurable(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsEphemeral reports whether ref is an inline payload or a handle that is only valid on
// the device that produced it. Bare paths are ephemeral; the empty reference is not.
func IsEphemeral(ref string) bool {
	if ref == "" || IsDurable(ref) {
		return false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range ephemeralSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return !strings.Contains(lower, "://")
}
