package avatar

import (
	"fmt"
	"net/url"
)

// Variant selects the avatar art style.
type Variant string

const (
	// VariantInitials renders the seed's initials; used for human users.
	VariantInitials Variant = "initials"
	// VariantBotttsNeutral renders a robot face; used for agents.
	VariantBotttsNeutral Variant = "bottts-neutral"
)

const baseURL = "https://api.dicebear.com/9.x"

// URI returns a deterministic avatar URL for a seed. The same seed and
// variant always produce the same image, so identities stay stable across
// chat-channel upserts without storing anything.
func URI(seed string, variant Variant) string {
	return fmt.Sprintf("%s/%s/svg?seed=%s", baseURL, variant, url.QueryEscape(seed))
}
