package httputil_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/phpup/pkg/httputil"
)

func ExamplePolicy_Do() {
	attempt := 0
	p := httputil.Policy{Attempts: 3, Delay: time.Millisecond}
	err := p.Do(context.Background(), func() error {
		attempt++
		if attempt == 1 {
			return httputil.Retryable(errors.New("connection reset"))
		}
		return nil
	})
	fmt.Println(attempt, err)
	// Output: 2 <nil>
}
