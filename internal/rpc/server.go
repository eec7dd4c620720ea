package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/quackphp/quack/internal/deduce"
	"github.com/quackphp/quack/internal/evidence"
	"github.com/quackphp/quack/internal/indexer"
	"github.com/sourcegraph/jsonrpc2"
)

// Server exposes the deduction engine and the result index over JSON-RPC,
// framed with Content-Length headers like a language server
type Server struct {
	index   *indexer.ResultIndex
	workers int
	conn    *jsonrpc2.Conn
}

// NewServer creates a server. index may be nil, in which case quack/results
// answers with an error.
func NewServer(index *indexer.ResultIndex, workers int) *Server {
	return &Server{
		index:   index,
		workers: workers,
	}
}

// Start serves requests read from in until the client sends exit or closes the stream
func (s *Server) Start(in io.Reader, out io.Writer) error {
	return s.Serve(context.Background(), rwc{in, out})
}

// Serve serves requests on stream until it is closed or ctx is done
func (s *Server) Serve(ctx context.Context, stream io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}), jsonrpc2.HandlerWithError(s.handle))
	s.conn = conn

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
	}
	return nil
}

// rwc combines a reader and writer into a single ReadWriteCloser
type rwc struct {
	io.Reader
	io.Writer
}

func (rwc) Close() error {
	return nil
}

type reduceParams struct {
	AvailableClasses []string               `json:"availableClasses"`
	Conditions       []evidence.Observation `json:"conditions"`
}

type reduceResult struct {
	Verdict       string   `json:"verdict"`
	AllTypes      []string `json:"allTypes"`
	AllowedAll    []string `json:"allowedAll"`
	AllowedStrict []string `json:"allowedStrict"`
	Conflict      []string `json:"conflict,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type consolidateParams struct {
	CallSites        []evidence.CallSite             `json:"callSites"`
	AvailableClasses []evidence.AvailableClassRecord `json:"availableClasses"`
}

type resultsParams struct {
	Filename string `json:"filename"`
	Line     *int   `json:"lineNumber,omitempty"`
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	if req.Method == "exit" {
		log.Println("Received exit notification, exiting")
		if err := conn.Close(); err != nil {
			log.Printf("error closing connection: %v", err)
		}
		return nil, nil
	}

	switch req.Method {
	case "shutdown":
		return nil, nil

	case "quack/reduce":
		var params reduceParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.reduce(params), nil

	case "quack/consolidate":
		var params consolidateParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		reports, err := deduce.NewConsolidator(s.workers).Run(params.CallSites, params.AvailableClasses)
		if err != nil {
			var precondition *deduce.PreconditionError
			if errors.As(err, &precondition) {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			}
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		return deduce.Entries(reports), nil

	case "quack/results":
		var params resultsParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.results(params)
	}

	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
}

func (s *Server) reduce(params reduceParams) reduceResult {
	deduction := deduce.Reduce(params.AvailableClasses, params.Conditions)

	result := reduceResult{
		Verdict:       deduction.Verdict.String(),
		AllTypes:      deduction.AllTypes,
		AllowedAll:    deduction.AllowedAll,
		AllowedStrict: deduction.AllowedStrict,
		Conflict:      deduction.Conflict,
	}
	if err := deduction.Err(); err != nil {
		result.Error = err.Error()
	}
	return result
}

func (s *Server) results(params resultsParams) (interface{}, error) {
	if s.index == nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: "result index is disabled"}
	}

	if params.Line != nil {
		site, err := s.index.Site(params.Filename, *params.Line)
		if err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		return site, nil
	}

	var (
		sites []indexer.SiteRecord
		err   error
	)
	if params.Filename == "" {
		sites, err = s.index.AllSites()
	} else {
		sites, err = s.index.SitesForFile(params.Filename)
	}
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}
	if sites == nil {
		sites = []indexer.SiteRecord{}
	}
	return sites, nil
}

func unmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeParseError, Message: err.Error()}
	}
	return nil
}
