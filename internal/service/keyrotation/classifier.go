package keyrotation

import "strings"

// quotaMarkers are lower-cased fragments of upstream messages that mean the
// credential is out of quota or throttled, or that the model is saturated.
var quotaMarkers = []string{
	"quota exceeded",
	"quotaexceeded",
	"ratelimitexceeded",
	"userratelimitexceeded",
	"dailylimitexceeded",
	"the model is overloaded",
	"resource has been exhausted",
}

// IsQuotaExceededError reports whether err signals quota exhaustion or
// upstream overload. Network, authorization and decoding errors are not
// credential faults and return false.
func IsQuotaExceededError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
