package accounts

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	msgRequired         = "This field is required."
	msgInvalidUsername  = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgInvalidEmail     = "Enter a valid email address."
	msgPasswordMismatch = "The two password fields didn't match."
	msgUsernameTaken    = "A user with that username already exists."
	msgInvalidImage     = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
	msgImageTooLarge    = "The uploaded file is too large."
	msgInvalidLogin     = "Invalid username or password."
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// Upload is a file submitted with a form.
type Upload struct {
	Filename string
	Data     []byte
}

// SignupForm is a registration submission.
type SignupForm struct {
	Username  string
	Password1 string
	Password2 string
	Email     string
	FirstName string
	LastName  string

	ProfilePicture *Upload
	IsDoctor       bool
	AddressLine1   string
	City           string
	State          string
	Pincode        string
}

// Clean normalises the submission in place and returns the errors that can
// be decided from the form alone. Uniqueness and password policy need the
// store and are checked by Service.Register.
func (f *SignupForm) Clean() FieldErrors {
	errs := FieldErrors{}

	f.Username = NormalizeUsername(f.Username)
	if requireText(errs, "username", f.Username, 150) {
		if !usernamePattern.MatchString(f.Username) {
			errs.Add("username", msgInvalidUsername)
		}
	}

	f.Email = NormalizeEmail(f.Email)
	if requireText(errs, "email", f.Email, 254) && !validEmail(f.Email) {
		errs.Add("email", msgInvalidEmail)
	}

	f.FirstName = strings.TrimSpace(f.FirstName)
	requireText(errs, "first_name", f.FirstName, 30)
	f.LastName = strings.TrimSpace(f.LastName)
	requireText(errs, "last_name", f.LastName, 30)

	// passwords are never stripped
	if f.Password1 == "" {
		errs.Add("password1", msgRequired)
	}
	if f.Password2 == "" {
		errs.Add("password2", msgRequired)
	}
	if f.Password1 != "" && f.Password2 != "" && f.Password1 != f.Password2 {
		errs.Add("password2", msgPasswordMismatch)
	}

	f.AddressLine1 = strings.TrimSpace(f.AddressLine1)
	requireText(errs, "address_line1", f.AddressLine1, 255)
	f.City = strings.TrimSpace(f.City)
	requireText(errs, "city", f.City, 100)
	f.State = strings.TrimSpace(f.State)
	requireText(errs, "state", f.State, 100)
	f.Pincode = strings.TrimSpace(f.Pincode)
	requireText(errs, "pincode", f.Pincode, 100)

	if f.ProfilePicture != nil && len(f.ProfilePicture.Data) == 0 {
		f.ProfilePicture = nil
	}
	return errs
}

func (f SignupForm) attributes() UserAttributes {
	return UserAttributes{
		Username:  f.Username,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Email:     f.Email,
	}
}

// LoginForm is a credential submission.
type LoginForm struct {
	Username string
	Password string
}

const minLoginPasswordLength = 8

func (f *LoginForm) Clean() FieldErrors {
	errs := FieldErrors{}

	f.Username = NormalizeUsername(f.Username)
	if f.Username == "" {
		errs.Add("username", msgRequired)
	}

	switch n := utf8.RuneCountInString(f.Password); {
	case n == 0:
		errs.Add("password", msgRequired)
	case n < minLoginPasswordLength:
		errs.Add("password", fmt.Sprintf("Ensure this value has at least %d characters (it has %d).", minLoginPasswordLength, n))
	}
	return errs
}

// NormalizeUsername trims and applies NFKC so visually identical names
// compare equal.
func NormalizeUsername(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}

// NormalizeEmail trims and lower-cases the domain part.
func NormalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	return s[:at+1] + strings.ToLower(s[at+1:])
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	return domain == "localhost" || (strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".") && !strings.HasPrefix(domain, "."))
}

// requireText records a missing or over-long value and reports whether the
// value passed both checks.
func requireText(errs FieldErrors, field, value string, max int) bool {
	if value == "" {
		errs.Add(field, msgRequired)
		return false
	}
	if n := utf8.RuneCountInString(value); n > max {
		errs.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", max, n))
		return false
	}
	return true
}
