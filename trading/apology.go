package trading

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Apology is a failure the user is told about, with the HTTP status to
// answer with.
type Apology struct {
	Message string
	Code    int
}

func (a *Apology) Error() string {
	return fmt.Sprintf("%d: %s", a.Code, a.Message)
}

func apologize(code int, message string) *Apology {
	return &Apology{Message: message, Code: code}
}

// AsApology turns any error into the apology shown to the user. Errors that
// are not an *Apology become a 500.
func AsApology(err error) *Apology {
	var a *Apology
	if errors.As(err, &a) {
		return a
	}
	return apologize(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

const minPasswordLength = 8

// checkPassword applies the password rules to a new password.
func checkPassword(password, confirmation string) error {
	if password == "" {
		return apologize(http.StatusBadRequest, "must provide password")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return apologize(http.StatusBadRequest, "password must have at least 8 characters")
	}
	var letter, digit bool
	for _, r := range password {
		letter = letter || unicode.IsLetter(r)
		digit = digit || unicode.IsDigit(r)
	}
	if !letter || !digit {
		return apologize(http.StatusBadRequest, "password must have at least 1 letter and 1 number")
	}
	if password != confirmation {
		return apologize(http.StatusBadRequest, "confirmation must be equal to your password")
	}
	return nil
}

// parseShares reads a share count typed in a form.
func parseShares(shares string) (int64, error) {
	shares = strings.TrimSpace(shares)
	if shares == "" {
		return 0, apologize(http.StatusBadRequest, "must provide a number of shares")
	}
	n, err := strconv.ParseInt(shares, 10, 64)
	if err != nil {
		return 0, apologize(http.StatusBadRequest, "must provide a number of shares")
	}
	if n <= 0 {
		return 0, apologize(http.StatusBadRequest, "must enter a positive number")
	}
	return n, nil
}
