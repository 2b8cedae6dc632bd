package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"trivia-live-service/internal/contentfilter"
	"trivia-live-service/internal/domain"
)

const (
	NicknameMinLength = 2
	NicknameMaxLength = 20
)

// validateNickname trims surrounding whitespace, enforces the length bounds
// in runes, and rejects anything the content filter flags. Returns the
// cleaned nickname on success.
func validateNickname(raw string, filter contentfilter.Filter) (string, error) {
	nick := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(nick)
	if n < NicknameMinLength {
		return "", &domain.ValidationError{Field: "nickname", Reason: fmt.Sprintf("must be at least %d characters", NicknameMinLength)}
	}
	if n > NicknameMaxLength {
		return "", &domain.ValidationError{Field: "nickname", Reason: fmt.Sprintf("must be at most %d characters", NicknameMaxLength)}
	}
	if filter != nil && filter.Flag(nick) {
		return "", fmt.Errorf("%w: nickname %q", domain.ErrInappropriate, nick)
	}
	return nick, nil
}
