package ethereum

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/buffer"
	"github.com/clcert/beacon-verifier/verifier/event"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ethereum")

const bufferSize = 120

// Config is the Ethereum source's per-instance configuration (spec.md §6
// sources.ethereum).
type Config struct {
	Threshold     int
	BlockIDModule uint64
	InfuraToken   string
	EtherScanToken string
	RivetToken    string
}

// Source polls three independent Ethereum RPC providers, each into its own
// FIFO hash-merge buffer, and decides verification by threshold quorum.
type Source struct {
	cfg       Config
	providers []Provider
	buffers   map[string]*buffer.FIFOBuffer[event.EthBlock]
}

// ErrNotEnoughProviders is returned by New when fewer providers are
// configured than the quorum threshold requires.
var ErrNotEnoughProviders = errors.New("ethereum source: fewer providers configured than threshold")

// New constructs the Ethereum source from whichever provider tokens are
// configured; at least cfg.Threshold providers must be present.
func New(cfg Config) (*Source, error) {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	var providers []Provider
	if cfg.InfuraToken != "" {
		providers = append(providers, NewInfura(cfg.InfuraToken))
	}
	if cfg.EtherScanToken != "" {
		providers = append(providers, NewEtherScan(cfg.EtherScanToken))
	}
	if cfg.RivetToken != "" {
		providers = append(providers, NewRivet(cfg.RivetToken))
	}
	if len(providers) < cfg.Threshold {
		return nil, ErrNotEnoughProviders
	}

	buffers := make(map[string]*buffer.FIFOBuffer[event.EthBlock], len(providers))
	merge := func(existing, incoming event.EthBlock) event.EthBlock { return existing.Merge(incoming) }
	for _, p := range providers {
		buffers[p.Name()] = buffer.NewFIFOBuffer[event.EthBlock](bufferSize, merge, nil)
	}

	return &Source{cfg: cfg, providers: providers, buffers: buffers}, nil
}

func (s *Source) Name() string { return "ethereum" }

func (s *Source) Init(ctx context.Context) error { return nil }

func (s *Source) Finish(ctx context.Context) error { return nil }

const fetchInterval = 6 * time.Second

// Collect polls every provider once, each under a timeout of
// interval/len(providers) (spec.md §4.6), buffers the result — the latest
// block if its number is a multiple of blockIdModule, its ancestor if the
// latest is ≡1 (mod blockIdModule) — then sleeps out the remainder of
// fetchInterval so the run-loop's back-to-back calls still land on an
// ≈6s cadence instead of hammering the providers.
func (s *Source) Collect(ctx context.Context) error {
	start := time.Now()
	perProviderTimeout := fetchInterval / time.Duration(len(s.providers))

	var wg sync.WaitGroup
	for _, p := range s.providers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, perProviderTimeout)
			defer cancel()
			s.collectFromProvider(pctx, p)
		}()
	}
	wg.Wait()

	if wait := fetchInterval - time.Since(start); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
	return nil
}

func (s *Source) collectFromProvider(ctx context.Context, p Provider) {
	number, hash, parentHash, uncles, err := p.LatestBlock(ctx)
	if err != nil {
		log.WithField("provider", p.Name()).WithError(err).Debug("error getting latest block")
		return
	}

	block := event.NewEthBlock(number, hash)
	ancestorHashes := map[string]struct{}{parentHash: {}}
	for _, u := range uncles {
		ancestorHashes[u] = struct{}{}
	}
	ancestor := event.EthBlock{Number: number - 1, Hashes: ancestorHashes}

	buf := s.buffers[p.Name()]
	switch number % s.cfg.BlockIDModule {
	case 0:
		buf.Add(blockKey(block.Number), block)
	case 1:
		buf.Add(blockKey(ancestor.Number), ancestor)
	}
}

func blockKey(number uint64) string { return strconv.FormatUint(number, 10) }

// PossibleMarkers counts the (blockId, hash) candidates observed by at
// least Threshold distinct providers — the quorum-confirmed population
// verify() can match against, not the raw per-provider buffer totals.
func (s *Source) PossibleMarkers() int {
	counts := make(map[string]int)
	for _, buf := range s.buffers {
		for _, block := range buf.Items() {
			for hash := range block.Hashes {
				counts[fmt.Sprintf("%d:%s", block.Number, hash)]++
			}
		}
	}
	possible := 0
	for _, count := range counts {
		if count >= s.cfg.Threshold {
			possible++
		}
	}
	return possible
}

func (s *Source) BufferLen() int {
	total := 0
	for _, buf := range s.buffers {
		total += buf.Len()
	}
	return total
}

// Verify implements spec.md §4.6.
func (s *Source) Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult {
	res := result.NewVerifierResult(s.Name(), spec.Status, s.PossibleMarkers())

	if spec.Status&(1<<1) != 0 {
		return res.Finish(result.VerifierExtractionError, fmt.Sprintf("beacon_status=%d", spec.Status))
	}

	blockNum, err := strconv.ParseUint(spec.Metadata, 0, 64)
	if err != nil {
		return res.Finish(result.VerifierMetadataInconsistent, fmt.Sprintf("unparsable block id=%s", spec.Metadata))
	}
	if blockNum%s.cfg.BlockIDModule != 0 {
		return res.Finish(result.VerifierMetadataInconsistent,
			fmt.Sprintf("module=%d", s.cfg.BlockIDModule), fmt.Sprintf("block_id=%d", blockNum))
	}

	key := blockKey(blockNum)
	correct := 0
	var errs []string
	for name, buf := range s.buffers {
		if !buf.CheckMarker(key) {
			errs = append(errs, fmt.Sprintf("block %d not found in %s buffer (len=%d)", blockNum, name, buf.Len()))
			continue
		}
		block, _ := buf.GetFirst()
		if block.HasHash(spec.Raw) {
			correct++
		} else {
			errs = append(errs, fmt.Sprintf("hash %s not among %s's observed hashes for block %d", spec.Raw, name, blockNum))
		}
	}

	if correct >= s.cfg.Threshold {
		return res.Finish(result.VerifierOK)
	}
	return res.Finish(result.VerifierMetadataNotFound,
		fmt.Sprintf("total_providers=%d", len(s.buffers)), fmt.Sprintf("threshold=%d", s.cfg.Threshold),
		fmt.Sprintf("correct=%d", correct), fmt.Sprintf("errors=%v", errs))
}
