// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package voterpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/optakt/kudu-tablet/pkg/election"
)

// fullMethod is the path gRPC routes RequestVote calls under.
const fullMethod = "/kudu.tablet.VoteService/RequestVote"

// VoteServiceServer is implemented by anything that can answer a vote
// RPC on the receiving end, such as Server.
type VoteServiceServer interface {
	RequestVote(ctx context.Context, req *election.VoteRequest) (*election.VoteResponse, error)
}

// ServiceDesc is the hand-built grpc.ServiceDesc for the vote RPC,
// standing in for what protoc-gen-go-grpc would otherwise generate
// from a .proto file.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "kudu.tablet.VoteService",
	HandlerType: (*VoteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestVote",
			Handler:    requestVoteHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "voterpc.proto",
}

func requestVoteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(election.VoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VoteServiceServer).RequestVote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VoteServiceServer).RequestVote(ctx, req.(*election.VoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}
