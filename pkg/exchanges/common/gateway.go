package common

import "context"

// Gateway abstracts a trading venue. Orders cannot be cancelled once
// submitted, so the interface carries submission only.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Signer is the opaque signing capability backed by wallet key material.
type Signer interface {
	// Key is the public credential sent alongside signed requests.
	Key() string
	// Sign returns the hex signature of payload.
	Sign(payload string) string
}
