package mongoutil

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultPort           = "27017"
	defaultMaxPoolSize    = 100
	defaultMaxRetry       = 3
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultConnectTimeout = 10 * time.Second
)

// auth failures: AuthenticationFailed(18), Unauthorized(13)
var fatalCodes = map[int32]struct{}{13: {}, 18: {}}

func buildMongoURI(c *Config) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   strings.Join(c.Address, ","),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	q := url.Values{}
	q.Set("authSource", c.AuthSource)
	q.Set("maxPoolSize", strconv.Itoa(c.MaxPoolSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// shouldRetry is false once ctx is done or the server rejected the
// credentials.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		_, fatal := fatalCodes[cmdErr.Code]
		return !fatal
	}
	return true
}
