package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

func main() {
	app := mustBootstrapFareAPI()
	defer app.Close()

	err := app.Run()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}
