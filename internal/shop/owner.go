package shop

import "strings"

// Owner ids are opaque strings. Authenticated shoppers are "user:<subject>",
// anonymous sessions are "anon:<session token>".
const (
	userPrefix = "user:"
	anonPrefix = "anon:"
)

func UserOwner(subject string) string { return userPrefix + subject }

func AnonOwner(session string) string { return anonPrefix + session }

func IsAnonOwner(owner string) bool { return strings.HasPrefix(owner, anonPrefix) }

func IsUserOwner(owner string) bool { return strings.HasPrefix(owner, userPrefix) }

// Session returns the session token of an anonymous owner id.
func Session(owner string) (string, bool) {
	if !IsAnonOwner(owner) {
		return "", false
	}
	return strings.TrimPrefix(owner, anonPrefix), true
}
