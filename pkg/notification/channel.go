// Package notification holds the channel senders used to reach emergency
// contacts and guardians: OS deep links, HTTP gateways, mail and push.
//
// Every Sender follows the same contract: a nil error means the dispatch
// call succeeded. Only gateway senders can observe delivery problems, and
// even those report acceptance by the provider, not receipt by a person.
package notification

import (
	"context"
	"strings"
	"unicode"
)

type Sender interface {
	Send(ctx context.Context, address, text string) error
}

// Digits strips everything but digits, the form wa.me and most gateways
// expect for phone numbers.
func Digits(number string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, number)
}

// E164 keeps a leading plus and the digits.
func E164(number string) string {
	d := Digits(number)
	if d == "" {
		return ""
	}
	return "+" + d
}
