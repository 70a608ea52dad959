package server

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names of the sieve.v1.Filter service.
const (
	FilterServiceName      = "sieve.v1.Filter"
	FilterTestMethod       = "/sieve.v1.Filter/Test"
	FilterSubstituteMethod = "/sieve.v1.Filter/Substitute"
	FilterRewriteMethod    = "/sieve.v1.Filter/Rewrite"
)

// TestRequest asks which candidates any enabled rule matches.
type TestRequest struct {
	Candidates []string `json:"candidates"`
}

// TestResult reports the first matching rule for one candidate.
type TestResult struct {
	Candidate string `json:"candidate"`
	Matched   bool   `json:"matched"`
	RuleID    string `json:"rule_id,omitempty"`
	RuleName  string `json:"rule_name,omitempty"`
}

// TestResponse holds one result per candidate, in request order.
type TestResponse struct {
	Results []TestResult `json:"results"`
}

// SubstituteRequest rewrites subject with one rule. A nil Template uses
// the server's default replacement.
type SubstituteRequest struct {
	RuleID          string  `json:"rule_id"`
	Subject         string  `json:"subject"`
	Template        *string `json:"template,omitempty"`
	IncludeDisabled bool    `json:"include_disabled,omitempty"`
}

// SubstituteResponse carries the rewritten text.
type SubstituteResponse struct {
	Text string `json:"text"`
}

// RewriteRequest applies every enabled rule to subject in order.
type RewriteRequest struct {
	Subject  string  `json:"subject"`
	Template *string `json:"template,omitempty"`
}

// RewriteResponse carries the best-effort output and the rules that were
// skipped because they timed out or failed.
type RewriteResponse struct {
	Text    string   `json:"text"`
	Skipped []string `json:"skipped,omitempty"`
}

// FilterServer is the server API for the sieve.v1.Filter service.
type FilterServer interface {
	Test(context.Context, *TestRequest) (*TestResponse, error)
	Substitute(context.Context, *SubstituteRequest) (*SubstituteResponse, error)
	Rewrite(context.Context, *RewriteRequest) (*RewriteResponse, error)
}

// RegisterFilterServer registers srv on s.
func RegisterFilterServer(s grpc.ServiceRegistrar, srv FilterServer) {
	s.RegisterService(&filterServiceDesc, srv)
}

var filterServiceDesc = grpc.ServiceDesc{
	ServiceName: FilterServiceName,
	HandlerType: (*FilterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Test", Handler: filterTestHandler},
		{MethodName: "Substitute", Handler: filterSubstituteHandler},
		{MethodName: "Rewrite", Handler: filterRewriteHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sieve/v1/filter",
}

func filterTestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Test(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FilterTestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FilterServer).Test(ctx, req.(*TestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func filterSubstituteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubstituteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Substitute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FilterSubstituteMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FilterServer).Substitute(ctx, req.(*SubstituteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func filterRewriteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RewriteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Rewrite(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FilterRewriteMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FilterServer).Rewrite(ctx, req.(*RewriteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FilterClient calls sieve.v1.Filter over the JSON codec.
type FilterClient struct {
	cc grpc.ClientConnInterface
}

// NewFilterClient creates a client on cc.
func NewFilterClient(cc grpc.ClientConnInterface) *FilterClient {
	return &FilterClient{cc: cc}
}

func (c *FilterClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

// Test calls Filter.Test.
func (c *FilterClient) Test(ctx context.Context, in *TestRequest, opts ...grpc.CallOption) (*TestResponse, error) {
	out := new(TestResponse)
	if err := c.invoke(ctx, FilterTestMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Substitute calls Filter.Substitute.
func (c *FilterClient) Substitute(ctx context.Context, in *SubstituteRequest, opts ...grpc.CallOption) (*SubstituteResponse, error) {
	out := new(SubstituteResponse)
	if err := c.invoke(ctx, FilterSubstituteMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Rewrite calls Filter.Rewrite.
func (c *FilterClient) Rewrite(ctx context.Context, in *RewriteRequest, opts ...grpc.CallOption) (*RewriteResponse, error) {
	out := new(RewriteResponse)
	if err := c.invoke(ctx, FilterRewriteMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
