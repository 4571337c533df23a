package sqlvars

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a variable value that tripped the SQL
// injection detector.
type InjectionCheckResult struct {
	IsSQLi       bool
	Fingerprint  string
	VariableName string
	Value        string
}

// CheckValue screens a single user-supplied variable value for SQL
// injection patterns. Returns nil when the value is clean.
func CheckValue(name, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:       true,
		Fingerprint:  string(fingerprint),
		VariableName: name,
		Value:        value,
	}
}

// CheckValues screens every supplied value and returns one result per
// flagged variable. An empty slice means all values are clean.
func CheckValues(values map[string]string) []InjectionCheckResult {
	var flagged []InjectionCheckResult
	for name, value := range values {
		if result := CheckValue(name, value); result != nil {
			flagged = append(flagged, *result)
		}
	}
	return flagged
}
