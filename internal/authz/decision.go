package authz

import "net/http"

// Reason classifies a denial.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonUnauthenticated       Reason = "UNAUTHENTICATED"
	ReasonMissingRoleAssignment Reason = "MISSING_ROLE_ASSIGNMENT"
	ReasonPermissionDenied      Reason = "PERMISSION_DENIED"
	ReasonPolicyDenied          Reason = "POLICY_DENIED"
	ReasonStoreUnavailable      Reason = "STORE_UNAVAILABLE"
)

// Decision is the engine verdict. Detail is for logs only and must not reach clients.
type Decision struct {
	Allowed   bool     `json:"allowed"`
	Reason    Reason   `json:"reason,omitempty"`
	Message   string   `json:"message,omitempty"`
	Required  []string `json:"required,omitempty"`
	Operation string   `json:"operation"`
	Detail    string   `json:"-"`
}

var messages = map[Reason]string{
	ReasonUnauthenticated:       "Authentication is required.",
	ReasonMissingRoleAssignment: "No role is assigned to this account.",
	ReasonPermissionDenied:      "You do not have permission to perform this action.",
	ReasonPolicyDenied:          "Access to this resource is not allowed.",
	ReasonStoreUnavailable:      "Authorization is temporarily unavailable. Try again later.",
}

func allow(op string) Decision {
	return Decision{Allowed: true, Operation: op}
}

func deny(op string, reason Reason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Message: messages[reason], Operation: op, Detail: detail}
}

// Status maps the decision to an HTTP status code.
func (d Decision) Status() int {
	switch {
	case d.Allowed:
		return http.StatusOK
	case d.Reason == ReasonUnauthenticated:
		return http.StatusUnauthorized
	case d.Reason == ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}
