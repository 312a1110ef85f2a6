package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API description and the Swagger UI.
type OpenAPIHandler struct {
	spec     []byte
	specJSON []byte
	parseErr error
}

// NewOpenAPIHandler converts spec to JSON once up front.
func NewOpenAPIHandler(spec []byte) *OpenAPIHandler {
	h := &OpenAPIHandler{spec: spec}
	var doc map[string]any
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		h.parseErr = err
		return h
	}
	h.specJSON, h.parseErr = json.Marshal(doc)
	return h
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/openapi.yaml", h.ServeYAML).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", h.ServeJSON).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.json"))).Methods(http.MethodGet)
}

// ServeYAML serves the OpenAPI spec in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, _ *http.Request) {
	if len(h.spec) == 0 {
		http.Error(w, "OpenAPI specification not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	if _, err := w.Write(h.spec); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// ServeJSON serves the OpenAPI spec in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, _ *http.Request) {
	if h.parseErr != nil || len(h.specJSON) == 0 {
		http.Error(w, "Failed to parse OpenAPI specification", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(h.specJSON); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}
