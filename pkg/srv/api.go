/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package srv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-openapi/loads"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/c1728p9/usbtrace/pkg/config"
	"github.com/c1728p9/usbtrace/pkg/log"
	"github.com/c1728p9/usbtrace/pkg/scsi"
	"github.com/c1728p9/usbtrace/pkg/store"
)

const (
	ApiPrefix       = "/api"
	ShutdownTimeout = 5 * time.Second
)

// ApiServer serves the saved captures over HTTP
type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	state *store.State
	doc   *loads.Document
}

func NewApiServer(ctx context.Context, cfg *config.Config, state *store.State) (*ApiServer, error) {
	log.Info("Initializing API server with address: %s", cfg.ApiListen())
	doc, err := LoadSpec()
	if err != nil {
		return nil, err
	}
	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		state:   state,
		doc:     doc,
	}
	s.configureRouter()
	return s, nil
}

// Handler returns the router with the API docs and access logging
func (s *ApiServer) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(log.Default().Writer(), withDocs(s.doc, s.Router))
}

// Run serves until the context is done
func (s *ApiServer) Run() error {
	log.Info("Starting API server: address: %s", s.Config.ApiListen())
	httpServer := &http.Server{
		Handler: s.Handler(),
		Addr:    s.Config.ApiListen(),
	}
	go func() {
		<-s.Context.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix(ApiPrefix).Subrouter()
	subRouter.HandleFunc("/captures", s.handleList()).Methods("GET")
	subRouter.HandleFunc("/captures/{name}", s.handleGet()).Methods("GET")
	subRouter.HandleFunc("/captures/{name}", s.handleDelete()).Methods("DELETE")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error while encoding response: %s", err)
	}
}

func storeError(w http.ResponseWriter, err error) {
	var notFound store.ErrCaptureNotFound
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *ApiServer) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling capture list request")
		names, err := s.state.ListCaptures()
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, names)
	}
}

// handleGet returns the records of a capture. Payloads are only included
// with ?data=true.
func (s *ApiServer) handleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		log.Debug("Handling capture request: %s", name)
		records, err := s.state.LoadCapture(name)
		if err != nil {
			storeError(w, err)
			return
		}
		if r.URL.Query().Get("data") != "true" {
			for _, rec := range records {
				rec.Data = nil
			}
		}
		if records == nil {
			records = []*scsi.Record{}
		}
		writeJSON(w, records)
	}
}

func (s *ApiServer) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		log.Debug("Handling capture delete request: %s", name)
		if err := s.state.DeleteCapture(name); err != nil {
			storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
