package collab

import (
	"fmt"
	"hash/fnv"
)

// PresenceColor derives the cursor color for a user. The hash is stable, so
// a user keeps the same color across documents and reconnects without any
// persisted assignment; saturation and lightness are fixed so every color
// stays readable on a white canvas.
func PresenceColor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	hue := h.Sum32() % 360
	return fmt.Sprintf("hsl(%d, 70%%, 45%%)", hue)
}
