package gateway

import (
	"strings"
	"time"

	"quizduel-server/duel"
)

const (
	prefixChat  = "MessageToChat "
	prefixEmoji = "SendEmoji "
)

// classify turns one raw inbound text frame into a duel.Event, applying
// the reserved-prefix rule: chat and emoji frames are recognized by exact
// prefix match, everything else is an answer (spec.md §4.1/§4.5 step 4).
func classify(userID, raw string) duel.Event {
	now := time.Now()
	switch {
	case strings.HasPrefix(raw, prefixChat):
		return duel.Event{UserID: userID, Kind: duel.EventChat, Payload: strings.TrimPrefix(raw, prefixChat), ReceivedAt: now}
	case strings.HasPrefix(raw, prefixEmoji):
		return duel.Event{UserID: userID, Kind: duel.EventEmoji, Payload: strings.TrimPrefix(raw, prefixEmoji), ReceivedAt: now}
	default:
		return duel.Event{UserID: userID, Kind: duel.EventAnswer, Payload: raw, ReceivedAt: now}
	}
}
