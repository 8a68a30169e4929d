package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("tag_color", validateTagColor); err != nil {
		panic(fmt.Sprintf("failed to register tag_color validator: %v", err))
	}
	if err := Validate.RegisterValidation("calendar_date", validateCalendarDate); err != nil {
		panic(fmt.Sprintf("failed to register calendar_date validator: %v", err))
	}
}

func validateTagColor(fl validator.FieldLevel) bool {
	return ValidateTagColor(fl.Field().String()) == nil
}

func validateCalendarDate(fl validator.FieldLevel) bool {
	return ValidateCalendarDate(fl.Field().String()) == nil
}

// ValidateTagColor validates a tag color as a #rrggbb hex string.
func ValidateTagColor(value string) error {
	if !hexColorPattern.MatchString(value) {
		return fmt.Errorf("invalid color: %s (must be a #rrggbb hex string)", value)
	}
	return nil
}

// ValidateCalendarDate validates a task date. The empty string is allowed
// (undated tasks live in the backlog column); otherwise YYYY-MM-DD.
func ValidateCalendarDate(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("invalid date: %s (must be YYYY-MM-DD)", value)
	}
	return nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing
// control characters except newline and tab.
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
