package validation

import (
	"fmt"
	"regexp"
	"slices"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Rule checks a single field value. The value is the raw JSON of the field,
// parsed with gjson; a missing field has Exists() == false.
type Rule func(value gjson.Result) error

// Required отклоняет отсутствующее или null поле
func Required() Rule {
	return func(v gjson.Result) error {
		if !v.Exists() || v.Type == gjson.Null {
			return fmt.Errorf("is required")
		}
		return nil
	}
}

// String требует строковое значение длиной от minLen до maxLen символов.
// maxLen <= 0 снимает верхнюю границу.
func String(minLen, maxLen int) Rule {
	return func(v gjson.Result) error {
		if !v.Exists() {
			return nil
		}
		if v.Type != gjson.String {
			return fmt.Errorf("must be a string")
		}
		n := utf8.RuneCountInString(v.Str)
		if n < minLen {
			return fmt.Errorf("must be at least %d characters long", minLen)
		}
		if maxLen > 0 && n > maxLen {
			return fmt.Errorf("must not exceed %d characters", maxLen)
		}
		return nil
	}
}

// Pattern requires a string value matching re
func Pattern(re *regexp.Regexp) Rule {
	return func(v gjson.Result) error {
		if !v.Exists() {
			return nil
		}
		if v.Type != gjson.String {
			return fmt.Errorf("must be a string")
		}
		if !re.MatchString(v.Str) {
			return fmt.Errorf("does not match %s", re.String())
		}
		return nil
	}
}

// Number требует число в диапазоне [minVal, maxVal]
func Number(minVal, maxVal float64) Rule {
	return func(v gjson.Result) error {
		if !v.Exists() {
			return nil
		}
		if v.Type != gjson.Number {
			return fmt.Errorf("must be a number")
		}
		if v.Num < minVal || v.Num > maxVal {
			return fmt.Errorf("must be between %g and %g", minVal, maxVal)
		}
		return nil
	}
}

// OneOf requires a string value from the allowed set
func OneOf(allowed ...string) Rule {
	return func(v gjson.Result) error {
		if !v.Exists() {
			return nil
		}
		if v.Type != gjson.String || !slices.Contains(allowed, v.Str) {
			return fmt.Errorf("must be one of %v", allowed)
		}
		return nil
	}
}
