package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/controller"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/wallet"
)

// statusFor maps controller, wallet and chain errors to HTTP status codes.
func statusFor(err error) int {
	var remote *chain.RemoteCallError
	switch {
	case errors.Is(err, controller.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, controller.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrAuthorizationDenied):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
