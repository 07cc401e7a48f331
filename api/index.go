package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"favourites-api/internal/app"
	"favourites-api/internal/observability"
)

var (
	initMu     sync.Mutex
	apiRuntime *app.Runtime
)

// Handler is the serverless entry point. The runtime is built on first use and
// the database is opened by the first request that needs it. A failed build is
// retried on the next invocation.
func Handler(w http.ResponseWriter, r *http.Request) {
	runtime, err := loadRuntime()
	if err != nil {
		observability.CaptureError(r.Context(), err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "application bootstrap failed"})
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}

func loadRuntime() (*app.Runtime, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if apiRuntime != nil {
		return apiRuntime, nil
	}

	runtime, err := app.Build(app.Options{
		LoadDotEnv:    false,
		RunMigrations: false,
	})
	if err != nil {
		return nil, err
	}
	apiRuntime = runtime
	return apiRuntime, nil
}
