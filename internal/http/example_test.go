package http_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"

	httpserver "github.com/fyrsmithlabs/stylerank/internal/http"
	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval/retrievaltest"
)

// ExampleServer ranks a small in-memory index through the search endpoint.
func ExampleServer() {
	index := retrievaltest.New(
		retrieval.Source{ExternalID: "FT911-1", Title: "cats", Body: "cats sleep all day"},
		retrieval.Source{ExternalID: "FT911-2", Title: "dogs", Body: "dogs chase cats"},
	)

	svc, err := ranking.NewService(index, nil, logging.NewNop(), ranking.DefaultOptions())
	if err != nil {
		panic(err)
	}
	server, err := httpserver.NewServer(svc, logging.NewNop(), &httpserver.Config{Host: "localhost", Port: 9090})
	if err != nil {
		panic(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/search?q=cats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	fmt.Println(rec.Code, strings.Contains(rec.Body.String(), `"external_id":"FT911-1"`))

	_ = server.Shutdown(context.Background())
	// Output: 200 true
}
