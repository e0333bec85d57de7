package cascade

import (
	"strings"

	"travel-assistant/internal/slots"
)

// Answer is a yes/no reply to a consent prompt.
type Answer int

const (
	AnswerUnclear Answer = iota
	AnswerYes
	AnswerNo
)

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	default:
		return "unclear"
	}
}

var yesTokens = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yup": true, "ya": true,
	"sure": true, "ok": true, "okay": true, "k": true, "proceed": true, "go ahead": true,
	"go for it": true, "do it": true, "please do": true, "yes please": true, "please": true,
	"sounds good": true, "absolutely": true, "of course": true, "affirmative": true,
}

var noTokens = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "no thanks": true, "no thank you": true,
	"skip": true, "pass": true, "cancel": true, "stop": true, "don't": true, "dont": true,
	"not now": true, "never mind": true, "nevermind": true, "negative": true, "skip it": true,
}

// MatchConsentToken reports whether text is an exact yes/no reply. ok is
// false for anything that needs a closer look.
func MatchConsentToken(text string) (answer Answer, ok bool) {
	n := strings.Trim(slots.Normalize(text), ".!?, ")
	switch {
	case yesTokens[n]:
		return AnswerYes, true
	case noTokens[n]:
		return AnswerNo, true
	}
	return AnswerUnclear, false
}

// IsConsentToken is MatchConsentToken without the answer.
func IsConsentToken(text string) bool {
	_, ok := MatchConsentToken(text)
	return ok
}
