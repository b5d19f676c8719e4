package obplatform_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/obplatform/obplatform-go"
	"github.com/obplatform/obplatform-go/client"
	"github.com/obplatform/obplatform-go/connector"
)

func ExampleNewConnector() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"key":"Appliance_Usage","label":"Appliance Usage","disabled":false}]`)
	}))
	defer ts.Close()

	conn, err := obplatform.NewConnector(
		connector.WithEndpoint(ts.URL),
		connector.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		connector.WithClientOptions(client.WithTimeout(5*time.Second)),
	)
	if err != nil {
		fmt.Println("build error:", err)
		return
	}

	behaviors, err := conn.ListBehaviors(context.Background())
	if err != nil {
		fmt.Println("list error:", err)
		return
	}

	for _, b := range behaviors {
		fmt.Println(b.Key, "-", b.Label)
	}
	// Output: Appliance_Usage - Appliance Usage
}
