// Package parallel contains a bounded parallel ForEach.
package parallel

import "golang.org/x/sync/errgroup"

// ForEach executes body for every integer from 0 to length with at most limit
// goroutines running at once. It waits for all of them and returns the error
// of the lowest index that failed.
func ForEach(length, limit int, body func(i int) error) error {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return nil
	}

	errs := make([]error, length)
	var eg errgroup.Group
	eg.SetLimit(limit)

	for i := 0; i < length; i++ {
		i := i
		eg.Go(func() error {
			errs[i] = body(i)
			return errs[i]
		})
	}

	if err := eg.Wait(); err == nil {
		return nil
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
