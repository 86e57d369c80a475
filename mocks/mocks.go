// Package mocks holds per-account test doubles. A registered handler fully
// replaces real execution for its account: the deployed code, if any, is
// never invoked, and only a fixed dispatch overhead is charged.
package mocks

import (
	"fmt"

	"github.com/chainsim-dev/chainsim/types"
)

// ResponseKind tags the variant of a Response.
type ResponseKind int

const (
	// ResponseSuccess: the mocked call succeeds with a return value.
	ResponseSuccess ResponseKind = iota
	// ResponseFailure: the mocked call fails with a message.
	ResponseFailure
	// ResponsePanic: the mocked call panics with a message.
	ResponsePanic
)

// Response is what a mock handler produces for one call.
type Response struct {
	Kind    ResponseKind
	Value   []byte
	Message string
}

// Success returns a successful response carrying value.
func Success(value []byte) Response {
	return Response{Kind: ResponseSuccess, Value: value}
}

// Failure returns a failed response with the given message.
func Failure(message string) Response {
	return Response{Kind: ResponseFailure, Message: message}
}

// Panic returns a panicking response with the given message.
func Panic(message string) Response {
	return Response{Kind: ResponsePanic, Message: message}
}

// Handler synthesizes a response for a call without invoking the executor.
// The two built-in variants are HandlerFunc for dynamic behavior and
// StaticResponse for canned per-method responses; the scheduler treats both
// uniformly through this interface.
type Handler interface {
	Handle(method string, args []byte) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(method string, args []byte) Response

func (f HandlerFunc) Handle(method string, args []byte) Response {
	return f(method, args)
}

// StaticResponse answers one method with a canned response. Calls to any
// other method fail as method-not-found. An empty Method answers every
// method.
type StaticResponse struct {
	Method   string
	Response Response
}

func (s StaticResponse) Handle(method string, _ []byte) Response {
	if s.Method != "" && s.Method != method {
		return Failure(fmt.Sprintf("method '%s' not found in mock", method))
	}
	return s.Response
}

// Registry maps an account to at most one handler.
type Registry struct {
	handlers map[types.AccountID]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.AccountID]Handler),
	}
}

// Register installs a handler for the account, replacing any prior handler.
// Last registration wins.
func (r *Registry) Register(account types.AccountID, handler Handler) {
	r.handlers[account] = handler
}

// Clear removes the account's handler, if any.
func (r *Registry) Clear(account types.AccountID) {
	delete(r.handlers, account)
}

// Get returns the account's handler.
func (r *Registry) Get(account types.AccountID) (Handler, bool) {
	h, ok := r.handlers[account]
	return h, ok
}
