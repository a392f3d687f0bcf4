// ABOUTME: Route table compiled into a cached ServeMux
// ABOUTME: FlushRoutes drops the cache so the next request recompiles it

package host

import "net/http"

type route struct {
	pattern string
	handler http.Handler
}

// Handle registers a route. Routes added after the table is compiled take
// effect after the next flush.
func (f *Framework) Handle(pattern string, h http.Handler) {
	f.routeMu.Lock()
	f.routes = append(f.routes, route{pattern: pattern, handler: h})
	f.routeMu.Unlock()
}

// FlushRoutes invalidates the compiled route table.
func (f *Framework) FlushRoutes() {
	f.mux.Store(nil)
	n := f.flushCount.Add(1)
	f.logger.Debug("routes flushed", "count", n)
}

// FlushCount returns how many times the route table has been flushed.
func (f *Framework) FlushCount() int64 {
	return f.flushCount.Load()
}

func (f *Framework) compiledMux() *http.ServeMux {
	if mux := f.mux.Load(); mux != nil {
		return mux
	}

	f.routeMu.Lock()
	defer f.routeMu.Unlock()
	if mux := f.mux.Load(); mux != nil {
		return mux
	}
	mux := http.NewServeMux()
	for _, r := range f.routes {
		mux.Handle(r.pattern, r.handler)
	}
	f.mux.Store(mux)
	return mux
}

// ServeHTTP dispatches through the compiled route table.
func (f *Framework) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.compiledMux().ServeHTTP(w, r)
}
