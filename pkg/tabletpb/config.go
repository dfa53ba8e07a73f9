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

// Package tabletpb holds the externally supplied configuration for a
// tablet-server process: the tablet's own identity and the Raft
// configuration of peers it runs elections against. Everything here
// comes from flags today; the struct tags are what would let a future
// config-file loader validate the same way.
package tabletpb

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/optakt/kudu-tablet/pkg/election"
)

// Special case in the validator library that shouldn't really happen
// with correct usage.
var errInvalidValidation = errors.New("invalid validation")

// PeerConfig describes one other member of a tablet's Raft
// configuration.
type PeerConfig struct {
	UUID    string `validate:"required"`
	Address string `validate:"required"`
	Role    string `validate:"required,oneof=VOTER OBSERVER"`
}

// TabletConfig is the full externally supplied configuration of one
// tablet-server process, including itself as an implicit VOTER peer.
type TabletConfig struct {
	TabletID          string       `validate:"required"`
	SelfUUID          string       `validate:"required"`
	VoteListenAddress string       `validate:"required"`
	Peers             []PeerConfig `validate:"omitempty,dive"`
}

// Validator wraps go-playground/validator/v10, translating its
// reflection-based error type into a plain error the way api/rosetta's
// Validator does for the same library.
type Validator struct {
	validate *validator.Validate
}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate runs struct-tag validation over config.
func (v *Validator) Validate(config interface{}) error {
	err := v.validate.Struct(config)
	if err == nil {
		return nil
	}

	// Only happens if an invalid argument (not a struct, for instance)
	// was passed in; real tag violations come back as ValidationErrors.
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return errInvalidValidation
	}

	return fmt.Errorf("invalid tablet configuration: %w", err)
}

// RaftConfig renders the config into the election.RaftConfig that
// election.New and RaftConfig.Voters/NumVoters consume, with self
// included as a VOTER.
func (c TabletConfig) RaftConfig() election.RaftConfig {
	peers := make([]election.Peer, 0, len(c.Peers)+1)
	peers = append(peers, election.Peer{UUID: c.SelfUUID, Role: election.RoleVoter})
	for _, p := range c.Peers {
		role := election.RoleObserver
		if p.Role == "VOTER" {
			role = election.RoleVoter
		}
		peers = append(peers, election.Peer{UUID: p.UUID, Role: role})
	}
	return election.RaftConfig{TabletID: c.TabletID, Peers: peers}
}

// AddressBook returns the peer UUID to dialable gRPC address lookup a
// voterpc.AddressResolver is built from.
func (c TabletConfig) AddressBook() map[string]string {
	book := make(map[string]string, len(c.Peers))
	for _, p := range c.Peers {
		book[p.UUID] = p.Address
	}
	return book
}
