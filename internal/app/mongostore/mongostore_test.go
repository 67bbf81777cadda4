package mongostore

import (
	"context"
	"os"
	"testing"

	"pingup/internal/pkg/randx"
	"pingup/internal/app/store/storetest"
)

// TestStore runs the backend suite against PINGUP_TEST_MONGO_URI, one fresh database per subtest.
func TestStore(t *testing.T) {
	uri := os.Getenv("PINGUP_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PINGUP_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		suffix, err := randx.Base62(8)
		if err != nil {
			t.Fatalf("Base62: %v", err)
		}
		name := "pingup_test_" + suffix
		s, err := Open(context.Background(), uri, name)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() {
			s.client.Database(name).Drop(context.Background())
			s.Close()
		})
		return s
	})
}
