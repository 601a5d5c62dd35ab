package mongoutil

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestValidateBuildsURI(t *testing.T) {
	c := &Config{Address: []string{"m1:27017", "m2:27017"}, Database: "chat", Username: "u", Password: "p"}
	if err := c.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	want := "mongodb://u:p@m1:27017,m2:27017/chat?authSource=chat&maxPoolSize=100"
	if c.Uri != want || c.MaxRetry != defaultMaxRetry || c.RetryBackoff != defaultRetryBackoff {
		t.Fatalf("uri = %s", c.Uri)
	}

	c = &Config{Address: []string{" m1 ", ""}, Database: "chat", Username: "a@b", Password: "p/w", AuthSource: "admin"}
	if err := c.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	want = "mongodb://a%40b:p%2Fw@m1:27017/chat?authSource=admin&maxPoolSize=100"
	if c.Uri != want {
		t.Fatalf("uri = %s", c.Uri)
	}

	c = &Config{Uri: "mongodb://x/chat", Database: "chat"}
	if err := c.ValidateAndSetDefaults(); err != nil || c.Uri != "mongodb://x/chat" || c.ConnectTimeout != defaultConnectTimeout {
		t.Fatalf("explicit uri changed: %s %v", c.Uri, err)
	}

	if err := (&Config{Database: "chat"}).ValidateAndSetDefaults(); err == nil {
		t.Fatal("no address accepted")
	}
	if err := (&Config{Uri: "mongodb://x"}).ValidateAndSetDefaults(); err == nil {
		t.Fatal("no database accepted")
	}
}

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	if !shouldRetry(ctx, errors.New("connection refused")) {
		t.Fatal("network errors retry")
	}
	if shouldRetry(ctx, mongo.CommandError{Code: 18}) {
		t.Fatal("auth failures do not retry")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if shouldRetry(cancelled, errors.New("x")) {
		t.Fatal("done context stops retries")
	}
}
