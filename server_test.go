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

package connect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func echoMethod() *MethodInfo {
	return &MethodInfo{
		ServiceName:      "test.EchoService",
		Name:             "Echo",
		IdempotencyLevel: IdempotencyNoSideEffects,
		StreamType:       StreamTypeUnary,
	}
}

func newEchoString() any { return new(wrapperspb.StringValue) }

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := NewMux("")

	unary := NewUnaryEndpoint(echoMethod(), newEchoString, newEchoString,
		func(ctx context.Context, rc *RequestContext, request any) (any, error) {
			in := request.(*wrapperspb.StringValue)
			return wrapperspb.String("echo:" + in.GetValue()), nil
		},
	)
	mux.Register(unary)

	streamMethod := &MethodInfo{ServiceName: "test.EchoService", Name: "EchoStream", StreamType: StreamTypeServer}
	serverStream := NewServerStreamEndpoint(streamMethod, newEchoString, newEchoString,
		func(ctx context.Context, rc *RequestContext, request any, emit func(any) error) error {
			in := request.(*wrapperspb.StringValue)
			for _, part := range []string{"a", "b", "c"} {
				if err := emit(wrapperspb.String(in.GetValue() + part)); err != nil {
					return err
				}
			}
			return nil
		},
	)
	mux.Register(serverStream)

	clientStreamMethod := &MethodInfo{ServiceName: "test.EchoService", Name: "EchoCollect", StreamType: StreamTypeClient}
	clientStream := NewClientStreamEndpoint(clientStreamMethod, newEchoString, newEchoString,
		func(ctx context.Context, rc *RequestContext, recv func() (any, bool, error)) (any, error) {
			var total string
			for {
				msg, ok, err := recv()
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}
				total += msg.(*wrapperspb.StringValue).GetValue()
			}
			return wrapperspb.String(total), nil
		},
	)
	mux.Register(clientStream)

	return httptest.NewServer(mux)
}

func echoStreamMethodInfo() *MethodInfo {
	return &MethodInfo{ServiceName: "test.EchoService", Name: "EchoStream", StreamType: StreamTypeServer}
}
func echoCollectMethodInfo() *MethodInfo {
	return &MethodInfo{ServiceName: "test.EchoService", Name: "EchoCollect", StreamType: StreamTypeClient}
}

func TestServerClientUnaryRoundTrip(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, echoMethod())
	resp, err := client.ExecuteUnary(context.Background(), wrapperspb.String("hello"), newEchoString)
	if err != nil {
		t.Fatalf("ExecuteUnary: %v", err)
	}
	got := resp.(*wrapperspb.StringValue)
	if want := wrapperspb.String("echo:hello"); !proto.Equal(got, want) {
		t.Errorf("response = %v, want %v", got, want)
	}
}

func TestServerClientUnaryGET(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, echoMethod(), WithGET())
	resp, err := client.ExecuteUnary(context.Background(), wrapperspb.String("via-get"), newEchoString)
	if err != nil {
		t.Fatalf("ExecuteUnary: %v", err)
	}
	got := resp.(*wrapperspb.StringValue)
	if want := wrapperspb.String("echo:via-get"); !proto.Equal(got, want) {
		t.Errorf("response = %v, want %v", got, want)
	}
}

func TestServerClientUnaryApplicationError(t *testing.T) {
	mux := NewMux("")
	method := &MethodInfo{ServiceName: "test.EchoService", Name: "Fail", StreamType: StreamTypeUnary}
	mux.Register(NewUnaryEndpoint(method, newEchoString, newEchoString,
		func(ctx context.Context, rc *RequestContext, request any) (any, error) {
			return nil, NewErrorf(CodeInvalidArgument, "bad input")
		},
	))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, method)
	_, err := client.ExecuteUnary(context.Background(), wrapperspb.String("x"), newEchoString)
	if err == nil {
		t.Fatal("expected an error")
	}
	connectErr, ok := asError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if connectErr.Code() != CodeInvalidArgument {
		t.Errorf("Code() = %v, want CodeInvalidArgument", connectErr.Code())
	}
}

func TestServerClientServerStream(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, echoStreamMethodInfo())
	stream, err := client.ExecuteServerStream(context.Background(), wrapperspb.String("x"), newEchoString)
	if err != nil {
		t.Fatalf("ExecuteServerStream: %v", err)
	}
	defer stream.Close()

	var got []string
	for {
		msg := new(wrapperspb.StringValue)
		err := stream.Receive(msg)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		got = append(got, msg.GetValue())
	}
	want := []string{"xa", "xb", "xc"}
	if len(got) != len(want) {
		t.Fatalf("got %v messages, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
	if stream.Err() != nil {
		t.Errorf("Err() = %v, want nil", stream.Err())
	}
}

func TestServerClientClientStream(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, echoCollectMethodInfo())
	stream, err := client.ExecuteClientStream(context.Background(), newEchoString)
	if err != nil {
		t.Fatalf("ExecuteClientStream: %v", err)
	}
	defer stream.Close()

	for _, part := range []string{"foo", "bar", "baz"} {
		if err := stream.Send(wrapperspb.String(part)); err != nil {
			t.Fatalf("Send(%q): %v", part, err)
		}
	}
	resp := new(wrapperspb.StringValue)
	if err := stream.CloseAndReceive(resp); err != nil {
		t.Fatalf("CloseAndReceive: %v", err)
	}
	if want := "foobarbaz"; resp.GetValue() != want {
		t.Errorf("collected = %q, want %q", resp.GetValue(), want)
	}
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+echoMethod().Procedure(), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestServerNotFound(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/no/such/method")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
