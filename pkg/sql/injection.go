package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a bound value that looks like SQL.
type InjectionCheckResult struct {
	Position    int    // 1-based placeholder number
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckParameterForInjection runs libinjection over a bound value.
//
// Values are always sent to the database out of band, so a match can never
// alter the statement. It does, however, tell us that the text we were
// given was trying to, which is worth an audit entry.
//
// Only string values are checked; numbers and booleans return nil.
func CheckParameterForInjection(position int, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{Position: position, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckAllParameters checks params in placeholder order. The first element
// is $offset+1.
func CheckAllParameters(params []any, offset int) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, v := range params {
		if r := CheckParameterForInjection(offset+i+1, v); r != nil {
			results = append(results, r)
		}
	}
	return results
}
