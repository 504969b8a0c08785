package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WalletAddressHeader carries the connected account's address. The SPA sets
// it after the wallet connects; signing stays in the wallet, this service
// only ever learns the identity.
const WalletAddressHeader = "X-Wallet-Address"

const accountKey = "account"

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

type SessionMiddleware struct {
	logger *zap.Logger
}

func NewSessionMiddleware(logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{logger: logger}
}

// RequireWallet rejects requests that carry no plausible account address.
// Only the shape is checked here; the ledger validates addresses for real.
func (sm *SessionMiddleware) RequireWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := strings.TrimSpace(c.GetHeader(WalletAddressHeader))
		if !addressPattern.MatchString(address) {
			sm.logger.Debug("Rejected request without wallet session",
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "connect a wallet and send " + WalletAddressHeader,
			})
			return
		}

		c.Set(accountKey, strings.ToLower(address))
		c.Next()
	}
}

// Account returns the session address set by RequireWallet.
func Account(c *gin.Context) string {
	return c.GetString(accountKey)
}
