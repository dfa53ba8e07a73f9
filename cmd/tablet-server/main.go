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

package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/optakt/kudu-tablet/metrics"
	"github.com/optakt/kudu-tablet/metrics/output"
	"github.com/optakt/kudu-tablet/metrics/rcrowley"
	"github.com/optakt/kudu-tablet/pkg/anchor"
	"github.com/optakt/kudu-tablet/pkg/cache"
	"github.com/optakt/kudu-tablet/pkg/deltafile"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/dms"
	"github.com/optakt/kudu-tablet/pkg/election"
	"github.com/optakt/kudu-tablet/pkg/storage"
	"github.com/optakt/kudu-tablet/pkg/tabletpb"
	"github.com/optakt/kudu-tablet/pkg/votecounter"
	"github.com/optakt/kudu-tablet/pkg/voterpc"
	"github.com/optakt/kudu-tablet/pkg/walsegments"
	servicemetrics "github.com/optakt/kudu-tablet/service/metrics"
	"github.com/optakt/kudu-tablet/service/profiler"
)

func main() {

	// Signal catching for clean shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	// Command line parameter initialization.
	var (
		flagTabletID      string
		flagSelfUUID      string
		flagData          string
		flagLog           string
		flagVoteAddress   string
		flagMetricsAddr   string
		flagProfilingAddr string
		flagPeers         []string
	)

	pflag.StringVarP(&flagTabletID, "tablet-id", "t", "tablet-1", "identifier of the tablet this server hosts")
	pflag.StringVarP(&flagSelfUUID, "self-uuid", "u", "node-1", "UUID of this node within the tablet's Raft configuration")
	pflag.StringVarP(&flagData, "data", "d", "data", "directory for tablet metadata and WAL segments")
	pflag.StringVarP(&flagLog, "log", "l", "info", "log output level")
	pflag.StringVar(&flagVoteAddress, "vote-address", "127.0.0.1:9001", "address the vote RPC server listens on")
	pflag.StringVar(&flagMetricsAddr, "metrics-address", "127.0.0.1:9002", "address the Prometheus metrics server listens on")
	pflag.StringVar(&flagProfilingAddr, "profiling-address", "", "address the pprof server listens on, disabled if empty")
	pflag.StringArrayVar(&flagPeers, "peer", nil, "peer in uuid=address=role form, e.g. node-2=127.0.0.1:9011=VOTER; repeatable")

	pflag.Parse()

	// Logger initialization.
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	level, err := zerolog.ParseLevel(flagLog)
	if err != nil {
		log.Fatal().Err(err).Msg("could not parse log level")
	}
	log = log.Level(level)

	peers, err := parsePeers(flagPeers)
	if err != nil {
		log.Fatal().Err(err).Msg("could not parse peer flags")
	}

	config := tabletpb.TabletConfig{
		TabletID:          flagTabletID,
		SelfUUID:          flagSelfUUID,
		VoteListenAddress: flagVoteAddress,
		Peers:             peers,
	}
	if err := tabletpb.NewValidator().Validate(config); err != nil {
		log.Fatal().Err(err).Msg("invalid tablet configuration")
	}
	raftConfig := config.RaftConfig()
	addressBook := config.AddressBook()

	// Initialize tablet metadata storage, the log anchor registry, the
	// WAL, the delta memstore and the block cache.
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(flagData, "meta")))
	if err != nil {
		log.Fatal().Err(err).Msg("could not open tablet metadata database")
	}
	defer db.Close()
	library := storage.New(db)

	registry := anchor.NewRegistry()
	defer registry.Close()

	wal, err := walsegments.Open(log, prometheus.DefaultRegisterer, filepath.Join(flagData, "wal"), walsegments.DefaultSegmentSize, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open WAL")
	}
	defer wal.Close()

	store := dms.New(registry, anchor.Owner(config.TabletID), dms.WithLogger(log))

	blockCache, err := cache.New(cache.WithEvictionCallback(evictionLogger{log: log}))
	if err != nil {
		log.Fatal().Err(err).Msg("could not construct block cache")
	}
	defer blockCache.Close()

	// Periodic, human-readable metrics, following the teacher's
	// ticker-driven Collector fan-out.
	sizeMetrics := rcrowley.NewSize(log, "delta_file", 30*time.Second)
	timeMetrics := rcrowley.NewTime(log, "dms_flush", 30*time.Second)
	metricsOutput := output.New(log, 30*time.Second)
	metricsOutput.Register(metrics.NewTabletCollector(config.TabletID, store, registry))
	metricsOutput.Run()
	defer metricsOutput.Stop()

	// The Prometheus /metrics and pprof servers each run in their own
	// goroutine, and are allowed to fail without bringing the tablet
	// server down.
	go func() {
		metricsServer := servicemetrics.NewServer(log, flagMetricsAddr)
		log.Info().Str("address", flagMetricsAddr).Msg("metrics server starting")
		err := metricsServer.Start()
		if err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	if flagProfilingAddr != "" {
		go func() {
			profilingServer := profiler.NewServer(log, flagProfilingAddr)
			log.Info().Str("address", flagProfilingAddr).Msg("profiling server starting")
			err := profilingServer.Start()
			if err != nil {
				log.Warn().Err(err).Msg("profiling server stopped")
			}
		}()
	}

	// The vote RPC server answers RequestVote calls from peer
	// candidates, independent of any election this node itself may be
	// running as a candidate.
	voteServer := voterpc.NewServer(config.SelfUUID, log)
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&voterpc.ServiceDesc, voteServer)
	listener, err := net.Listen("tcp", flagVoteAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("could not listen for vote RPCs")
	}
	go func() {
		log.Info().Str("address", flagVoteAddress).Msg("vote RPC server starting")
		err := grpcServer.Serve(listener)
		if err != nil {
			log.Warn().Err(err).Msg("vote RPC server stopped")
		}
	}()
	defer grpcServer.GracefulStop()

	factory := voterpc.NewFactory(func(peer election.Peer) (string, error) {
		addr, ok := addressBook[peer.UUID]
		if !ok {
			return "", fmt.Errorf("no known address for peer %s", peer.UUID)
		}
		return addr, nil
	}, grpc.WithInsecure())

	// Demonstrate a full pre-election-then-election sequence: a
	// non-binding pre-election first, to avoid disrupting a healthy
	// leader's term with a vote that could not possibly win, and a
	// binding election only once that pre-election is granted.
	go runElectionDemo(log, raftConfig, config.SelfUUID, factory)

	// Demonstrate one mutation flowing through the WAL and into the
	// DMS, so the tablet has something to flush and to report metrics
	// on while it runs.
	if err := applyDemoMutation(wal, store); err != nil {
		log.Warn().Err(err).Msg("could not apply demo mutation")
	}

	log.Info().Str("tablet_id", config.TabletID).Str("self_uuid", config.SelfUUID).Msg("tablet server starting")
	<-sig
	log.Info().Msg("tablet server stopping")

	go func() {
		<-sig
		log.Warn().Msg("forcing exit")
		os.Exit(1)
	}()

	// Flush the DMS one last time before shutting down, the same way a
	// real tablet would flush in-memory state rather than lose it.
	if !store.Empty() {
		if err := flushTabletToFile(log, config, store, library, wal, sizeMetrics, timeMetrics, "flush-0"); err != nil {
			log.Error().Err(err).Msg("could not flush DMS on shutdown")
		}
	}

	os.Exit(0)
}

// applyDemoMutation appends a single row update to the WAL and then
// applies it to the DMS with the WAL-assigned log index, the order any
// real write path must follow so an anchored index always corresponds
// to durable WAL content.
func applyDemoMutation(wal *walsegments.Store, store *dms.DeltaMemStore) error {
	change := deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("hello")}})
	index, err := wal.Append([]byte(change))
	if err != nil {
		return fmt.Errorf("could not append to WAL: %w", err)
	}
	_, err = store.Update(deltakey.Timestamp(time.Now().UnixNano()), deltakey.RowID(1), change, deltakey.OpID{Term: 1, Index: index})
	if err != nil {
		return fmt.Errorf("could not update DMS: %w", err)
	}
	return nil
}

// flushTabletToFile writes the DMS out to a frozen delta file,
// records the manifest entry, instruments compression ratio and flush
// duration, and truncates WAL segments the flush no longer needs.
func flushTabletToFile(log zerolog.Logger, config tabletpb.TabletConfig, store *dms.DeltaMemStore, library *storage.Library, wal *walsegments.Store, sizeMetrics *rcrowley.Size, timeMetrics *rcrowley.Time, fileID string) error {
	stop := timeMetrics.Duration("flush")
	defer stop()

	originalBytes := store.EstimateSize()

	var buf bytes.Buffer
	writer, err := deltafile.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("could not construct delta file writer: %w", err)
	}
	if err := store.FlushToFile(writer); err != nil {
		return fmt.Errorf("could not flush DMS to file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("could not close delta file writer: %w", err)
	}

	sizeMetrics.Bytes(config.TabletID, int(originalBytes), buf.Len())

	err = library.SaveLastFlushedOpIDAndManifest(config.TabletID, 0, storage.DeltaFileManifestEntry{
		TabletID:  config.TabletID,
		FileID:    fileID,
		SizeBytes: int64(buf.Len()),
	})
	if err != nil {
		return fmt.Errorf("could not save flush manifest: %w", err)
	}

	if _, err := wal.TruncateBefore(1 << 32); err != nil {
		log.Warn().Err(err).Msg("could not truncate WAL after flush")
	}

	return nil
}

// parsePeers turns repeated --peer uuid=address=role flags into
// tabletpb.PeerConfig entries.
func parsePeers(raw []string) ([]tabletpb.PeerConfig, error) {
	peers := make([]tabletpb.PeerConfig, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("peer %q must be in uuid=address=role form", entry)
		}
		peers = append(peers, tabletpb.PeerConfig{
			UUID:    parts[0],
			Address: parts[1],
			Role:    parts[2],
		})
	}
	return peers, nil
}

// evictionLogger adapts zerolog into a deltaiter.EvictionCallback, the
// way a production cache would hook page release into its own
// bookkeeping.
type evictionLogger struct {
	log zerolog.Logger
}

func (e evictionLogger) EvictedFromCache(key string, value interface{}) {
	deltas, _ := value.([]deltakey.Delta)
	e.log.Debug().Str("key", key).Int("deltas", len(deltas)).Msg("block evicted from cache")
}

// runElectionDemo runs a non-binding pre-election, and only follows up
// with a binding election if the pre-election is granted, the way a
// pre-vote safeguard keeps a healthy leader's term from being bumped
// by a vote that could not have won anyway.
func runElectionDemo(log zerolog.Logger, raftConfig election.RaftConfig, selfUUID string, factory election.PeerProxyFactory) {
	const candidateTerm = int64(1)

	preElectionGranted := make(chan bool, 1)
	preCounter, err := votecounter.New(raftConfig.NumVoters(), votecounter.MajoritySize(raftConfig.NumVoters()))
	if err != nil {
		log.Error().Err(err).Msg("could not construct pre-election vote counter")
		return
	}
	if _, err := preCounter.RegisterVote(votecounter.VoterID(selfUUID), votecounter.Granted); err != nil {
		log.Error().Err(err).Msg("could not register pre-election self-vote")
		return
	}

	preRequest := election.VoteRequest{
		CandidateUUID: selfUUID,
		CandidateTerm: candidateTerm,
		TabletID:      raftConfig.TabletID,
		IsPreElection: true,
	}
	preElection := election.New(raftConfig, selfUUID, factory, preRequest, preCounter, func(result election.Result) {
		preElectionGranted <- result.Decision == election.DecisionGranted
		log.Info().Str("decision", decisionString(result.Decision)).Str("summary", result.Summary).Msg("pre-election decided")
	}, election.WithLogger(log))
	preElection.Run(context.Background())

	if !<-preElectionGranted {
		log.Info().Msg("pre-election denied, not starting binding election")
		return
	}

	counter, err := votecounter.New(raftConfig.NumVoters(), votecounter.MajoritySize(raftConfig.NumVoters()))
	if err != nil {
		log.Error().Err(err).Msg("could not construct election vote counter")
		return
	}
	if _, err := counter.RegisterVote(votecounter.VoterID(selfUUID), votecounter.Granted); err != nil {
		log.Error().Err(err).Msg("could not register election self-vote")
		return
	}

	request := election.VoteRequest{
		CandidateUUID: selfUUID,
		CandidateTerm: candidateTerm,
		TabletID:      raftConfig.TabletID,
	}
	leaderElection := election.New(raftConfig, selfUUID, factory, request, counter, func(result election.Result) {
		servicemetrics.ElectionOutcomes.WithLabelValues(raftConfig.TabletID, decisionString(result.Decision)).Inc()
		log.Info().Str("decision", decisionString(result.Decision)).Str("summary", result.Summary).Msg("election decided")
	}, election.WithLogger(log))
	leaderElection.Run(context.Background())
}

func decisionString(d election.Decision) string {
	switch d {
	case election.DecisionGranted:
		return "granted"
	case election.DecisionDenied:
		return "denied"
	default:
		return "pending"
	}
}
