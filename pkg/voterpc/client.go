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
	"fmt"

	"google.golang.org/grpc"

	"github.com/optakt/kudu-tablet/pkg/election"
)

// AddressResolver maps a peer to a dialable gRPC address.
type AddressResolver func(peer election.Peer) (string, error)

// Factory constructs election.PeerProxy instances backed by real gRPC
// client connections, implementing election.PeerProxyFactory.
type Factory struct {
	resolve  AddressResolver
	dialOpts []grpc.DialOption
}

// NewFactory constructs a Factory that resolves peer addresses via
// resolve and dials with dialOpts.
func NewFactory(resolve AddressResolver, dialOpts ...grpc.DialOption) *Factory {
	return &Factory{resolve: resolve, dialOpts: dialOpts}
}

var _ election.PeerProxyFactory = (*Factory)(nil)

// NewProxy resolves peer's address and dials it. Per spec §4.6, a
// failure here is the caller's responsibility to record as a DENIED
// vote; Factory only reports the error.
func (f *Factory) NewProxy(peer election.Peer) (election.PeerProxy, error) {
	addr, err := f.resolve(peer)
	if err != nil {
		return nil, fmt.Errorf("could not resolve address for peer %s: %w", peer.UUID, err)
	}
	conn, err := grpc.Dial(addr, f.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not dial peer %s at %s: %w", peer.UUID, addr, err)
	}
	return &clientProxy{conn: conn}, nil
}

// clientProxy implements election.PeerProxy over a live gRPC
// connection, using the gob codec registered in codec.go.
type clientProxy struct {
	conn *grpc.ClientConn
}

var _ election.PeerProxy = (*clientProxy)(nil)

func (c *clientProxy) RequestVote(ctx context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	out := new(election.VoteResponse)
	err := c.conn.Invoke(ctx, fullMethod, &req, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return election.VoteResponse{}, fmt.Errorf("vote RPC to %s failed: %w", req.DestUUID, err)
	}
	return *out, nil
}
