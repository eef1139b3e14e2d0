package webserver

import (
	"context"
	"encoding/json"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/errors"
	"net/http"
)

// ViewSource provides the current devicelist.View and its changes.
type ViewSource interface {
	// View returns the current devicelist.View.
	View() devicelist.View
	// Watch returns a channel receiving the current and each following
	// devicelist.View until the given context.Context is done.
	Watch(ctx context.Context) <-chan devicelist.View
}

// PopulateRoutes populates the WebServer with the routes. The given
// context.Context is used for stopping websocket connections. If
// metricsHandler is nil, no metrics are served.
func (server *WebServer) PopulateRoutes(ctx context.Context, views ViewSource, metricsHandler http.Handler) {
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/devices", server.handleGetDevices(views)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/devices/ws", server.handleDevicesWS(ctx, views)).Methods(http.MethodGet)
	if metricsHandler != nil {
		server.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
}

// handleGetDevices responds with the current devicelist.View.
func (server *WebServer) handleGetDevices(views ViewSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := json.Marshal(views.View())
		if err != nil {
			errors.Log(server.logger, errors.Error{
				Code:    errors.ErrInternal,
				Kind:    errors.KindEncodeJSON,
				Err:     err,
				Message: "marshal device list",
			})
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}
}
