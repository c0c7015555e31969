package accounts

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// UserAttributes are the account fields a password must not resemble.
type UserAttributes struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// PasswordValidator is one independent password policy check.
type PasswordValidator interface {
	Validate(password string, user UserAttributes) error
	HelpText() string
}

// DefaultPasswordValidators returns the policy applied at registration.
func DefaultPasswordValidators() []PasswordValidator {
	return []PasswordValidator{
		SimilarityValidator{MaxSimilarity: 0.7},
		MinimumLengthValidator{MinLength: 8},
		CommonPasswordValidator{},
		NumericPasswordValidator{},
		MaximumBytesValidator{MaxBytes: 72},
	}
}

type MinimumLengthValidator struct {
	MinLength int
}

func (v MinimumLengthValidator) Validate(password string, _ UserAttributes) error {
	if utf8.RuneCountInString(password) < v.MinLength {
		return fmt.Errorf("This password is too short. It must contain at least %d characters.", v.MinLength)
	}
	return nil
}

func (v MinimumLengthValidator) HelpText() string {
	return fmt.Sprintf("Your password must contain at least %d characters.", v.MinLength)
}

type NumericPasswordValidator struct{}

func (NumericPasswordValidator) Validate(password string, _ UserAttributes) error {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return errors.New("This password is entirely numeric.")
}

func (NumericPasswordValidator) HelpText() string {
	return "Your password can't be entirely numeric."
}

//go:embed common_passwords.txt
var commonPasswordsRaw string

var (
	commonOnce      sync.Once
	commonPasswords map[string]struct{}
)

func loadCommonPasswords() map[string]struct{} {
	commonOnce.Do(func() {
		commonPasswords = make(map[string]struct{})
		sc := bufio.NewScanner(strings.NewReader(commonPasswordsRaw))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			commonPasswords[strings.ToLower(line)] = struct{}{}
		}
	})
	return commonPasswords
}

type CommonPasswordValidator struct{}

func (CommonPasswordValidator) Validate(password string, _ UserAttributes) error {
	if _, ok := loadCommonPasswords()[strings.ToLower(strings.TrimSpace(password))]; ok {
		return errors.New("This password is too common.")
	}
	return nil
}

func (CommonPasswordValidator) HelpText() string {
	return "Your password can't be a commonly used password."
}

// MaximumBytesValidator rejects passwords bcrypt would truncate.
type MaximumBytesValidator struct {
	MaxBytes int
}

func (v MaximumBytesValidator) Validate(password string, _ UserAttributes) error {
	if len(password) > v.MaxBytes {
		return fmt.Errorf("This password is too long. It must contain at most %d bytes.", v.MaxBytes)
	}
	return nil
}

func (v MaximumBytesValidator) HelpText() string {
	return ""
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// SimilarityValidator rejects passwords whose character overlap with any
// user attribute, or any word of it, reaches MaxSimilarity.
type SimilarityValidator struct {
	MaxSimilarity float64
}

func (v SimilarityValidator) Validate(password string, user UserAttributes) error {
	if password == "" {
		return nil
	}
	fold := cases.Fold()
	pw := fold.String(password)

	attrs := []struct {
		name  string
		value string
	}{
		{"username", user.Username},
		{"first name", user.FirstName},
		{"last name", user.LastName},
		{"email address", user.Email},
	}

	for _, a := range attrs {
		if a.value == "" {
			continue
		}
		value := fold.String(a.value)
		if exceedsLengthRatio(pw, v.MaxSimilarity, value) {
			continue
		}
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			if part == "" {
				continue
			}
			if quickRatio(pw, part) >= v.MaxSimilarity {
				return fmt.Errorf("The password is too similar to the %s.", a.name)
			}
		}
	}
	return nil
}

func (SimilarityValidator) HelpText() string {
	return "Your password can't be too similar to your other personal information."
}

// exceedsLengthRatio skips attributes so short relative to the password
// that no overlap could reach the threshold.
func exceedsLengthRatio(password string, maxSimilarity float64, value string) bool {
	pwdLen := utf8.RuneCountInString(password)
	valueLen := utf8.RuneCountInString(value)
	lengthBound := maxSimilarity / 2 * float64(pwdLen)
	return pwdLen >= 10*valueLen && float64(valueLen) < lengthBound
}

// quickRatio is an upper bound on the similarity of a and b: twice the
// multiset intersection of their runes over their combined length.
func quickRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int)
	for _, r := range b {
		avail[r]++
	}
	matches := 0
	for _, r := range a {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

// PasswordHelp collects the non-empty help texts of validators.
func PasswordHelp(validators []PasswordValidator) []string {
	var out []string
	for _, v := range validators {
		if h := v.HelpText(); h != "" {
			out = append(out, h)
		}
	}
	return out
}
