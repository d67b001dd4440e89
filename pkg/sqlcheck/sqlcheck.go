// Package sqlcheck screens the compiled query path. All SQL in this system
// is generated from validated plans and bound through placeholders; these
// checks are a second line against a filter value smuggling SQL through a
// parameter, and against a template ever emitting more than one statement.
package sqlcheck

import (
	"errors"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ErrMultipleStatements indicates the compiled SQL contains more than one
// statement.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed")

// InjectionFinding describes a parameter value flagged by libinjection.
type InjectionFinding struct {
	Fingerprint string
	ParamIndex  int
	ParamValue  any
}

// CheckParam runs libinjection over a single bind value. Non-string values
// cannot carry injection and always pass.
func CheckParam(index int, value any) *InjectionFinding {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionFinding{
			Fingerprint: string(fingerprint),
			ParamIndex:  index,
			ParamValue:  value,
		}
	}
	return nil
}

// CheckParams screens an ordered bind list, returning one finding per
// flagged value.
func CheckParams(params []any) []*InjectionFinding {
	var findings []*InjectionFinding
	for i, value := range params {
		if f := CheckParam(i, value); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}

// NormalizeStatement strips a trailing semicolon and rejects SQL containing
// additional statements.
func NormalizeStatement(sqlText string) (string, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return "", nil
	}

	normalized := strings.TrimRight(sqlText, " \t\n\r")
	if strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimRight(strings.TrimSuffix(normalized, ";"), " \t\n\r")
	}

	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

func hasSemicolonOutsideStrings(sqlText string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlText {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// SQL standard doubled quote ('') exits and immediately re-enters.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}
