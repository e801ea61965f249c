package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "prioadvisor API",
		Version:     "v1",
		Description: "Read-only view of the priority advisor loop and its published directives",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/api/v1/status", []string{"GET"}, "Poll loop state, last published tick, counters"},
			{"/api/v1/directives/latest", []string{"GET"}, "Currently published directive batch"},
			{"/api/v1/history", []string{"GET"}, "Published batches, newest first. Accepts ?limit= and ?offset="},
			{"/api/v1/history/{tick}", []string{"GET"}, "Published batch for one tick"},
		},
	})
}
