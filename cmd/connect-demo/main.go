// Copyright 2021-2024 The Connect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command connect-demo mounts a tiny Haberdasher-style Connect service
// behind gin, the way the teacher's repro/main.go mounted the ping
// service. It exists to give the runtime a concrete end-to-end harness,
// not as a library entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	connect "connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	listenAddr = flag.String("listen", ":8080", "address to listen on")
	useH2C     = flag.Bool("h2c", true, "serve HTTP/2 cleartext alongside HTTP/1.1")
)

func newLogger() *logiface.Logger[*izerolog.Event] {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return izerolog.L.New(izerolog.L.WithZerolog(zl), izerolog.L.WithLevel(logiface.LevelInformational))
}

// haberdasherMethod describes the service's unary method: MakeHat(Size) ->
// Hat, modeled with structpb.Struct so the demo needs no generated code
// (code generation from .proto files stays out of scope).
var haberdasherMethod = &connect.MethodInfo{
	ServiceName:      "acme.haberdasher.v1.HaberdasherService",
	Name:             "MakeHat",
	InputType:        "acme.haberdasher.v1.Size",
	OutputType:       "acme.haberdasher.v1.Hat",
	IdempotencyLevel: connect.IdempotencyNoSideEffects,
	StreamType:       connect.StreamTypeUnary,
}

// sizesMethod streams "count" Hats (at least one) of the requested inches,
// exercising the server-stream shape end to end.
var sizesMethod = &connect.MethodInfo{
	ServiceName:      "acme.haberdasher.v1.HaberdasherService",
	Name:             "MakeHats",
	InputType:        "acme.haberdasher.v1.Size",
	OutputType:       "acme.haberdasher.v1.Hat",
	IdempotencyLevel: connect.IdempotencyUnknown,
	StreamType:       connect.StreamTypeServer,
}

func makeHat(_ context.Context, _ *connect.RequestContext, request any) (any, error) {
	size, ok := request.(*structpb.Struct)
	if !ok {
		return nil, connect.NewErrorf(connect.CodeInvalidArgument, "unexpected request type %T", request)
	}
	inches := size.Fields["inches"].GetNumberValue()
	if inches <= 0 {
		return nil, connect.NewErrorf(connect.CodeInvalidArgument, "inches must be positive")
	}
	return hatForSize(inches), nil
}

func makeHats(_ context.Context, _ *connect.RequestContext, request any, emit func(any) error) error {
	size, ok := request.(*structpb.Struct)
	if !ok {
		return connect.NewErrorf(connect.CodeInvalidArgument, "unexpected request type %T", request)
	}
	inches := size.Fields["inches"].GetNumberValue()
	count := int(size.Fields["count"].GetNumberValue())
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		if err := emit(hatForSize(inches)); err != nil {
			return err
		}
	}
	return nil
}

func hatForSize(inches float64) *structpb.Struct {
	color := "white"
	if int(inches)%2 == 0 {
		color = "brown"
	}
	hat, _ := structpb.NewStruct(map[string]any{
		"size":  inches,
		"color": color,
		"name":  fmt.Sprintf("%g inch fedora", inches),
	})
	return hat
}

func newStruct() any { return new(structpb.Struct) }

func loggingInterceptor(logger *logiface.Logger[*izerolog.Event]) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, rc *connect.RequestContext, request any) (any, error) {
			response, err := next(ctx, rc, request)
			entry := logger.Info()
			if err != nil {
				entry = logger.Err()
			}
			entry.Str("procedure", rc.Method().Procedure()).Log("handled unary call")
			return response, err
		}
	}
}

func main() {
	flag.Parse()
	logger := newLogger()

	mux := connect.NewMux("")
	interceptors := []connect.Interceptor{loggingInterceptor(logger)}

	mux.Register(connect.NewUnaryEndpoint(
		haberdasherMethod, newStruct, newStruct, makeHat,
		connect.WithHandlerInterceptors(interceptors...),
	))
	mux.Register(connect.NewServerStreamEndpoint(
		sizesMethod, newStruct, newStruct, makeHats,
		connect.WithHandlerInterceptors(interceptors...),
	))

	app := gin.New()
	app.UseH2C = *useH2C
	app.Any(haberdasherMethod.Procedure(), gin.WrapH(mux))
	app.Any(sizesMethod.Procedure(), gin.WrapH(mux))
	app.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	logger.Info().Str("addr", *listenAddr).Log("starting haberdasher demo")
	if err := app.Run(*listenAddr); err != nil && !errors.Is(err, io.EOF) {
		logger.Err().Str("err", err.Error()).Log("server exited")
		os.Exit(1)
	}
}
