package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/0", false},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	ctx := t.Context()
	_, err := New(ctx, "redis://localhost:59999")
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}

func TestGetJSON_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	opts, err := ParseURL("redis://localhost:59999")
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	c := &Cache{Client: redis.NewClient(opts), prefix: "recall:"}
	defer c.Close()

	var v map[string]string
	err = c.GetJSON(t.Context(), "missing", &v)
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("GetJSON() error = %v, want connection error", err)
	}
}

func TestSetJSON_RejectsUnencodable(t *testing.T) {
	c := &Cache{Client: redis.NewClient(&redis.Options{Addr: "localhost:59999"})}
	defer c.Close()

	err := c.SetJSON(t.Context(), "k", make(chan int), time.Minute)
	if err == nil {
		t.Fatal("SetJSON() should fail for values that cannot be encoded")
	}
}
