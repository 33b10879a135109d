// Package dispatcher runs independently submitted top-level commands on a
// bounded worker pool.
//
// Usage:
//
//	d, err := dispatcher.New(2, func(o *dispatcher.Options) {
//	    o.OnFinished = func(f dispatcher.Finished) {
//	        fmt.Println(f.Command.Name(), f.State())
//	    }
//	})
//	if err != nil {
//	    return err
//	}
//	defer d.Dispose()
//
//	_ = d.Dispatch(cmd)
//	d.Wait()
//
// Workers are managed by an errgroup; Dispose aborts outstanding work and
// joins them.
package dispatcher
