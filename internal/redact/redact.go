// Package redact scrubs PII-shaped substrings from text before it crosses
// a trust boundary. Two passes are provided: the full request-side pass
// (email, phone, national ID, long numeric runs) applied to user message
// content before it leaves for the inference service, and a cheaper
// response-side pass (email, phone only) applied to the serialized upstream
// response before it is returned to the caller.
//
// Replacement tokens contain no digits or '@', so both passes are idempotent.
package redact

import (
	"regexp"
)

// Replacement tokens emitted by the redactor.
const (
	TokenEmail       = "[EMAIL]"
	TokenPhone       = "[PHONE]"
	TokenID          = "[ID]"
	TokenRedactedNum = "[REDACTED_NUM]"
)

// Digit-run threshold above which the generic numeric rule redacts.
// Runs of 4-6 digits (years, OTPs, short codes) pass through untouched.
const maxPlainDigits = 6

var (
	emailRe   = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	phoneRe   = regexp.MustCompile(`\b\d{10}\b`)
	idRe      = regexp.MustCompile(`\b\d{12}\b`)
	numericRe = regexp.MustCompile(`\b\d{4,}\b`)
)

// Redactor applies an ordered set of PII substitution rules.
// The zero value is not usable; construct with New.
type Redactor struct {
	email   *regexp.Regexp
	phone   *regexp.Regexp
	id      *regexp.Regexp
	numeric *regexp.Regexp
}

// New returns a Redactor with all patterns compiled.
func New() *Redactor {
	return &Redactor{
		email:   emailRe,
		phone:   phoneRe,
		id:      idRe,
		numeric: numericRe,
	}
}

// Text applies the full request-side pass. Rule order is fixed: the exact
// 10- and 12-digit patterns must run before the generic length-based rule so
// the more specific replacements win, and the email rule runs first so
// digits inside addresses are consumed as part of the address.
func (r *Redactor) Text(s string) string {
	out := r.email.ReplaceAllString(s, TokenEmail)
	out = r.phone.ReplaceAllString(out, TokenPhone)
	out = r.id.ReplaceAllString(out, TokenID)
	out = r.numeric.ReplaceAllStringFunc(out, func(m string) string {
		if len(m) > maxPlainDigits {
			return TokenRedactedNum
		}
		return m
	})
	return out
}

// Response applies the response-side pass: phone and email only. The
// 12-digit and generic numeric rules do not run on this path.
func (r *Redactor) Response(s string) string {
	out := r.phone.ReplaceAllString(s, TokenPhone)
	return r.email.ReplaceAllString(out, TokenEmail)
}
