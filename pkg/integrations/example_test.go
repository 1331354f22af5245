package integrations_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/integrations"
)

func ExampleClient_Cached() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"8.3.4"}`)
	}))
	defer srv.Close()

	client := integrations.NewClient(cache.NewNullCache(), "example:", time.Hour)

	var release struct {
		Version string `json:"version"`
	}
	err := client.Cached(context.Background(), "latest", false, &release, func() error {
		return client.Get(context.Background(), srv.URL, &release)
	})
	fmt.Println(release.Version, err)
	// Output: 8.3.4 <nil>
}
