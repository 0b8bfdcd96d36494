package card

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ludum/internal/model"
)

// Mode selects how strictly card input is validated. Lenient checks
// presence only: all nine fields must be non-empty, nothing more.
// Hardened additionally runs the Luhn checksum and rejects expired cards.
type Mode string

const (
	Lenient  Mode = "lenient"
	Hardened Mode = "hardened"
)

var (
	ErrMissingField = errors.New("missing required card field")
	ErrBadChecksum  = errors.New("card number failed checksum")
	ErrBadExpiry    = errors.New("card expiry is invalid or in the past")
)

// FormatNumber strips whitespace, groups digits in runs of four and caps
// the result at 19 display characters (16 digits plus 3 separators).
func FormatNumber(raw string) string {
	digits := strings.ReplaceAll(raw, " ", "")
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > 19 {
		out = out[:19]
	}
	return strings.TrimSpace(out)
}

// NormalizeHolderName upper-cases the holder name the way the embossed
// card shows it.
func NormalizeHolderName(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Digits drops every non-digit rune. Used to normalize card number,
// CPF/CNPJ, CEP and phone input before length checks.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate checks the card details according to the given mode. A nil
// return means the instrument is fully specified and may be submitted.
func Validate(d model.CardDetails, mode Mode, now time.Time) error {
	fields := []struct {
		name  string
		value string
	}{
		{"holder_name", d.HolderName},
		{"number", d.Number},
		{"expiry_month", d.ExpiryMonth},
		{"expiry_year", d.ExpiryYear},
		{"ccv", d.CCV},
		{"cpf_cnpj", d.CpfCnpj},
		{"postal_code", d.PostalCode},
		{"address_number", d.AddressNumber},
		{"phone", d.Phone},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	if mode != Hardened {
		return nil
	}

	number := Digits(d.Number)
	if len(number) < 13 || len(number) > 19 || !passesLuhn(number) {
		return ErrBadChecksum
	}
	if err := checkExpiry(d.ExpiryMonth, d.ExpiryYear, now); err != nil {
		return err
	}
	if n := len(Digits(d.CpfCnpj)); n != 11 && n != 14 {
		return fmt.Errorf("%w: cpf_cnpj", ErrMissingField)
	}
	if len(Digits(d.PostalCode)) != 8 {
		return fmt.Errorf("%w: postal_code", ErrMissingField)
	}
	return nil
}

func checkExpiry(month, year string, now time.Time) error {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return ErrBadExpiry
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y < 0 || y > 99 {
		return ErrBadExpiry
	}
	// Two-digit years are relative to the current century. The card is
	// valid through the last day of its expiry month.
	century := now.Year() - now.Year()%100
	expiry := time.Date(century+y, time.Month(m), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if !now.Before(expiry) {
		return ErrBadExpiry
	}
	return nil
}

// passesLuhn implements the standard mod 10 check.
func passesLuhn(number string) bool {
	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(string(number[i]))
		if err != nil {
			return false
		}
		if alternate {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alternate = !alternate
	}
	return sum%10 == 0
}
