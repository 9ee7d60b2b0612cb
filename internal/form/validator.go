package form

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	gerr "github.com/jekabolt/grbpwr-analytics/internal/errors"
)

const codeInvalidParam = "rest_invalid_param"

// Analog validation.ValidateStruct ozzy validation but returns a
// ParameterError listing every violated field.
func ValidateStruct(structField interface{}, rules ...*validation.FieldRules) error {
	var violations []string

	for _, rule := range rules {
		err := validation.ValidateStruct(structField, rule)
		if err == nil {
			continue
		}
		var ve validation.Errors
		if !errors.As(err, &ve) {
			return err
		}
		for field, fe := range ve {
			violations = append(violations, field+": "+formatErrMsg(fe.Error()))
		}
	}
	if len(violations) == 0 {
		return nil
	}
	sort.Strings(violations)

	return gerr.NewParameterError(codeInvalidParam, "Invalid parameter(s): "+strings.Join(violations, " "))
}

func formatErrMsg(s string) string {
	return ucfirst(strings.Trim(s, " .")) + "."
}

func ucfirst(str string) string {
	for i, v := range str {
		return string(unicode.ToUpper(v)) + str[i+1:]
	}
	return ""
}
