// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/cors"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

const (
	// ErrInvalidMethod is used if the HTTP method is not supported.
	ErrInvalidMethod = "Invalid method"
)

// allowCORS sets permissive CORS headers for a handler
var allowCORS = cors.New(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{"HEAD", "GET"},
	AllowedHeaders: []string{"*"},
})

// HTTPServer wraps an Agent and exposes it over an HTTP interface.
type HTTPServer struct {
	agent      *Agent
	mux        *http.ServeMux
	listener   net.Listener
	listenerCh chan struct{}
	logger     hclog.Logger
	Addr       string
}

// NewHTTPServer starts a new HTTP server over the agent.
func NewHTTPServer(agent *Agent, config *Config) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", config.AdvertiseAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP listener: %v", err)
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{
		agent:      agent,
		mux:        mux,
		listener:   ln,
		listenerCh: make(chan struct{}),
		logger:     agent.logger.Named("http"),
		Addr:       ln.Addr().String(),
	}
	srv.registerHandlers()

	go func() {
		defer close(srv.listenerCh)
		http.Serve(ln, mux)
	}()

	return srv, nil
}

// Shutdown stops the HTTP server.
func (s *HTTPServer) Shutdown() {
	if s != nil {
		s.logger.Debug("shutting down http server")
		s.listener.Close()
		<-s.listenerCh
	}
}

func (s *HTTPServer) registerHandlers() {
	s.mux.HandleFunc("/v1/recommendations", s.wrap(s.RecommendationsRequest))
	s.mux.HandleFunc("/v1/recommendations/latest", s.wrap(s.RecommendationsLatestRequest))
	s.mux.HandleFunc("/v1/recommendations/recalculate", s.wrap(s.RecommendationsRecalculateRequest))

	s.mux.HandleFunc("/v1/jobs", s.wrap(s.JobsRequest))
	s.mux.HandleFunc("/v1/job/", s.wrap(s.JobSpecificRequest))

	s.mux.HandleFunc("/v1/contractors", s.wrap(s.ContractorsRequest))
	s.mux.HandleFunc("/v1/contractor/", s.wrap(s.ContractorSpecificRequest))

	s.mux.HandleFunc("/v1/skills", s.wrap(s.SkillsRequest))
	s.mux.HandleFunc("/v1/skill/", s.wrap(s.SkillSpecificRequest))

	s.mux.Handle("/v1/events", wrapCORS(s.wrap(s.EventStream)))

	s.mux.HandleFunc("/v1/agent/health", s.wrap(s.HealthRequest))
}

// HTTPCodedError is used to provide the HTTP error code along with the error.
type HTTPCodedError interface {
	error
	Code() int
}

// CodedError wraps an error string with its HTTP status code.
func CodedError(c int, s string) HTTPCodedError {
	return &codedError{s, c}
}

type codedError struct {
	s    string
	code int
}

func (e *codedError) Error() string { return e.s }
func (e *codedError) Code() int     { return e.code }

// errCodeFromErr maps the stable error taxonomy onto HTTP status codes.
func errCodeFromErr(err error) int {
	switch structs.ErrCode(err) {
	case structs.CodeNotFound:
		return http.StatusNotFound
	case structs.CodeInvalidRequest:
		return http.StatusBadRequest
	case structs.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func taxonomyForStatus(code int) string {
	switch code {
	case http.StatusNotFound:
		return structs.CodeNotFound
	case http.StatusBadRequest, http.StatusMethodNotAllowed:
		return structs.CodeInvalidRequest
	case http.StatusConflict:
		return structs.CodeConflict
	default:
		return structs.CodeFatal
	}
}

// errorResponse is the JSON error body, carrying the taxonomy code alongside
// the human reason.
type errorResponse struct {
	Code  string
	Error string
}

// wrap turns an endpoint handler into an http.HandlerFunc with logging,
// error translation, and JSON encoding.
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(resp http.ResponseWriter, req *http.Request) {
	return func(resp http.ResponseWriter, req *http.Request) {
		setHeaders(resp, s.agent.config.HTTPAPIResponseHeaders)
		reqURL := req.URL.String()
		start := time.Now()
		defer func() {
			s.logger.Debug("request complete", "method", req.Method, "path", reqURL, "duration", time.Since(start))
		}()

		obj, err := handler(resp, req)
		if err != nil {
			code := http.StatusInternalServerError
			taxonomy := structs.CodeFatal
			if coded, ok := err.(HTTPCodedError); ok {
				code = coded.Code()
				taxonomy = taxonomyForStatus(code)
			} else {
				code = errCodeFromErr(err)
				taxonomy = structs.ErrCode(err)
			}
			s.logger.Error("request failed", "method", req.Method, "path", reqURL, "code", code, "error", err)

			resp.Header().Set("Content-Type", "application/json")
			resp.WriteHeader(code)
			json.NewEncoder(resp).Encode(&errorResponse{Code: taxonomy, Error: err.Error()})
			return
		}

		if obj != nil {
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			if prettyPrint(req) {
				enc.SetIndent("", "    ")
			}
			if err := enc.Encode(obj); err != nil {
				resp.WriteHeader(http.StatusInternalServerError)
				resp.Write([]byte(err.Error()))
				return
			}
			resp.Header().Set("Content-Type", "application/json")
			resp.Write(buf.Bytes())
		}
	}
}

func prettyPrint(req *http.Request) bool {
	v, ok := req.URL.Query()["pretty"]
	return ok && (len(v) == 0 || len(v[0]) == 0 || v[0] != "0")
}

// decodeBody decodes a JSON request body.
func decodeBody(req *http.Request, out interface{}) error {
	if req.Body == nil || req.Body == http.NoBody {
		return CodedError(http.StatusBadRequest, "request body is empty")
	}
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(out); err != nil {
		return CodedError(http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
	}
	return nil
}

// setHeaders is used to set configured response headers.
func setHeaders(resp http.ResponseWriter, headers map[string]string) {
	for field, value := range headers {
		resp.Header().Set(field, value)
	}
}

// setIndex sets the state index response header.
func setIndex(resp http.ResponseWriter, index uint64) {
	resp.Header().Set("X-Dispatch-Index", fmt.Sprintf("%d", index))
}

// pathSuffix splits "/v1/job/<id>/assign" style paths into id and verb.
func pathSuffix(path, prefix string) (string, string) {
	trimmed := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i+1:]
	}
	return trimmed, ""
}

// wrapCORS wraps a handler to allow CORS for streaming consumers.
func wrapCORS(f func(http.ResponseWriter, *http.Request)) http.Handler {
	return allowCORS.Handler(http.HandlerFunc(f))
}
