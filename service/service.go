// Package service is the memory-access façade handed to collaborators: it
// validates input, asks the negotiator for a usable backend, delegates, and
// normalizes every outcome into the shared error taxonomy. Nothing
// propagates uncaught past this boundary.
package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memgate/access"
	"memgate/access/memmap"
	"memgate/negotiate"
	"memgate/parse"
	"memgate/scan"
)

type Options struct {
	// Preferred names the backend tried first. Defaults to the broker, the
	// head of the fallback priority order.
	Preferred access.BackendID

	// MaxTransfer overrides the per-operation transfer bound.
	MaxTransfer uint32
}

type Service struct {
	neg         *negotiate.Negotiator
	preferred   access.BackendID
	maxTransfer uint32
	log         *logger.Logger
}

// Result carries an operation's payload and the backend that served it.
type Result struct {
	Data    []byte
	Backend access.BackendID
}

func New(neg *negotiate.Negotiator, opts Options) *Service {
	if opts.Preferred == "" {
		opts.Preferred = access.BackendBroker
	}
	if opts.MaxTransfer == 0 || opts.MaxTransfer > parse.MaxTransfer {
		opts.MaxTransfer = parse.MaxTransfer
	}
	return &Service{
		neg:         neg,
		preferred:   opts.Preferred,
		maxTransfer: opts.MaxTransfer,
		log:         logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "memgate")),
	}
}

// Close tears down the negotiator and with it the permission-event
// lifecycle.
func (s *Service) Close() {
	s.neg.Close()
}

// Negotiator exposes the permission table for probe/re-probe surfaces and
// broker consent callbacks.
func (s *Service) Negotiator() *negotiate.Negotiator {
	return s.neg
}

// ReadMemory copies size bytes at addr out of pid. Validation happens
// before any backend is touched.
func (s *Service) ReadMemory(ctx context.Context, pid int, addr uint64, size uint32) (Result, error) {
	if size > s.maxTransfer {
		return Result{}, fmt.Errorf("%w: %d exceeds limit %d", access.ErrSizeOutOfRange, size, s.maxTransfer)
	}
	if err := parse.CheckRange(addr, size); err != nil {
		return Result{}, err
	}

	var data []byte
	used, err := s.eachCandidate(ctx, func(b access.Backend) error {
		var err error
		data, err = b.Read(ctx, pid, addr, size)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Backend: used}, nil
}

// WriteMemory copies payload into pid at addr. A write never proceeds
// without the caller-supplied confirmation flag, whatever the permission
// state.
func (s *Service) WriteMemory(ctx context.Context, pid int, addr uint64, payload []byte, confirmed bool) (Result, error) {
	if !confirmed {
		return Result{}, fmt.Errorf("%w: destructive write requires confirmation", access.ErrWriteNotConfirmed)
	}
	if len(payload) == 0 || uint64(len(payload)) > uint64(s.maxTransfer) {
		return Result{}, fmt.Errorf("%w: payload of %d bytes", access.ErrSizeOutOfRange, len(payload))
	}
	if err := parse.CheckRange(addr, uint32(len(payload))); err != nil {
		return Result{}, err
	}

	used, err := s.eachCandidate(ctx, func(b access.Backend) error {
		_, err := b.Write(ctx, pid, addr, payload)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.log.Infoln("wrote", len(payload), "bytes to pid", pid, "via", string(used))
	return Result{Backend: used}, nil
}

// ListRegions returns pid's memory map through the best usable backend. An
// ErrBackendUnavailable result means "nothing granted", which callers must
// distinguish from a process with no readable regions.
func (s *Service) ListRegions(ctx context.Context, pid int) ([]memmap.Region, access.BackendID, error) {
	var regions []memmap.Region
	used, err := s.eachCandidate(ctx, func(b access.Backend) error {
		var err error
		regions, err = b.ListRegions(ctx, pid)
		return err
	})
	if err != nil {
		return nil, used, err
	}
	return regions, used, nil
}

// ListProcesses merges enumeration results from every backend with a usable
// permission state, deduplicated by pid. Per-backend failures are absorbed;
// the call itself never fails.
func (s *Service) ListProcesses(ctx context.Context) []access.ProcessHandle {
	s.neg.ProbeAll(ctx)

	seen := make(map[int]int)
	var merged []access.ProcessHandle
	for _, b := range s.neg.Granted() {
		handles, err := b.ListProcesses(ctx)
		if err != nil {
			s.log.Debugln("enumeration via", string(b.ID()), "failed:", err)
			continue
		}
		for _, h := range handles {
			if at, dup := seen[h.PID]; dup {
				// First backend wins; later ones may still contribute
				// package hints the first could not see.
				if merged[at].PackageNames == nil {
					merged[at].PackageNames = h.PackageNames
				}
				continue
			}
			seen[h.PID] = len(merged)
			merged = append(merged, h)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].PID < merged[j].PID })
	return merged
}

// SearchMemory walks pid's readable regions through one backend and returns
// the addresses where the pattern matches, capped at maxMatches (0 means no
// cap). Regions that refuse to read are skipped; the map is best-effort.
func (s *Service) SearchMemory(ctx context.Context, pid int, pattern scan.Pattern, maxMatches int) ([]uint64, access.BackendID, error) {
	if pattern.Len() == 0 {
		return nil, "", fmt.Errorf("%w: empty pattern", access.ErrMalformedPayload)
	}
	// A pattern longer than one chunk could never match and would drive the
	// region cursor backwards.
	if uint64(pattern.Len()) > uint64(s.maxTransfer) {
		return nil, "", fmt.Errorf("%w: %d-byte pattern exceeds transfer limit %d", access.ErrSizeOutOfRange, pattern.Len(), s.maxTransfer)
	}

	var matches []uint64
	used, err := s.eachCandidate(ctx, func(b access.Backend) error {
		regions, err := b.ListRegions(ctx, pid)
		if err != nil {
			return err
		}
		matches = matches[:0]
		for _, region := range regions {
			if !region.IsReadable() {
				continue
			}
			if err := s.searchRegion(ctx, b, pid, region, pattern, maxMatches, &matches); err != nil {
				return err
			}
			if maxMatches > 0 && len(matches) >= maxMatches {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, used, err
	}
	return matches, used, nil
}

func (s *Service) searchRegion(ctx context.Context, b access.Backend, pid int, region memmap.Region, pattern scan.Pattern, maxMatches int, matches *[]uint64) error {
	overlap := uint64(pattern.Len() - 1)
	chunk := uint64(s.maxTransfer)

	for start := region.Start; start < region.End; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", access.ErrTimeout, err)
		}

		size := region.End - start
		if size > chunk {
			size = chunk
		}
		data, err := b.Read(ctx, pid, start, uint32(size))
		if err != nil {
			// Unreadable stretch inside a readable region; move on.
			s.log.Debugln("search skipping", region.String(), ":", err)
			return nil
		}
		for _, off := range pattern.Find(data) {
			*matches = append(*matches, start+uint64(off))
			if maxMatches > 0 && len(*matches) >= maxMatches {
				return nil
			}
		}

		if start+size >= region.End {
			break
		}
		// Overlap chunk boundaries so boundary-straddling matches are kept.
		start += size - overlap
	}
	return nil
}

// eachCandidate applies fn to backends in the negotiator's preference order
// until one succeeds. AccessDenied and BackendUnavailable drive fallback;
// anything else is final. Only once every candidate is exhausted does the
// façade report a final AccessDenied.
func (s *Service) eachCandidate(ctx context.Context, fn func(access.Backend) error) (access.BackendID, error) {
	candidates := s.neg.Candidates(ctx, s.preferred)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no backend granted", access.ErrBackendUnavailable)
	}

	var lastErr error
	for _, b := range candidates {
		err := fn(b)
		if err == nil {
			return b.ID(), nil
		}
		if !access.Retryable(err) {
			return b.ID(), err
		}
		s.log.Debugln("backend", string(b.ID()), "refused, falling back:", err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: every granted backend refused (last: %v)", access.ErrAccessDenied, lastErr)
}
