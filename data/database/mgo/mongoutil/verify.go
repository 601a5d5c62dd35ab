package mongoutil

import (
	"strings"

	"PPRealtime/tools/errs"
)

// ValidateAndSetDefaults fills pool and retry defaults and, when Uri is
// empty, builds it from Address. Hosts without a port get 27017 and
// authSource falls back to Database.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Database == "" {
		return errs.ErrArgs.WrapMsg("mongo database is required")
	}
	c.fillDefaults()
	if c.Uri != "" {
		return nil
	}

	hosts := make([]string, 0, len(c.Address))
	for _, a := range c.Address {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !strings.Contains(a, ":") {
			a += ":" + defaultPort
		}
		hosts = append(hosts, a)
	}
	if len(hosts) == 0 {
		return errs.ErrArgs.WrapMsg("mongo uri or address is required")
	}
	c.Address = hosts
	if c.AuthSource == "" {
		c.AuthSource = c.Database
	}
	c.Uri = buildMongoURI(c)
	return nil
}

func (c *Config) fillDefaults() {
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
}
