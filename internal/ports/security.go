package ports

import "time"

type OperatorClaims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// OperatorVerifier authenticates callers of the outbox admin surface.
type OperatorVerifier interface {
	VerifyOperator(raw string) (OperatorClaims, error)
}
