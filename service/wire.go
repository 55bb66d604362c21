package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"memgate/access"
	"memgate/access/memmap"
	"memgate/parse"
	"memgate/scan"
)

// Request is the structured operation call arriving from the UI or
// assistant layer.
type Request struct {
	Op        string `json:"op"` // read | write | listRegions | listProcesses | search
	PID       string `json:"pid,omitempty"`
	Address   string `json:"address,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *WireError `json:"error,omitempty"`
	Backend string     `json:"backend,omitempty"`
}

// WireRegion is the region wire shape.
type WireRegion struct {
	BaseAddress string `json:"baseAddress"`
	EndAddress  string `json:"endAddress"`
	Size        uint64 `json:"size"`
	Permissions string `json:"permissions"`
	Path        string `json:"path"`
	Type        string `json:"type"`
}

// WireProcess is the process wire shape.
type WireProcess struct {
	PID          string   `json:"pid"`
	Name         string   `json:"name"`
	PackageNames []string `json:"packageNames"`
}

func regionToWire(r memmap.Region) WireRegion {
	return WireRegion{
		BaseAddress: parse.FormatAddress(r.Start),
		EndAddress:  parse.FormatAddress(r.End),
		Size:        r.Size(),
		Permissions: r.Perms,
		Path:        r.Path,
		Type:        r.Kind(),
	}
}

func processToWire(h access.ProcessHandle) WireProcess {
	pkgs := h.PackageNames
	if pkgs == nil {
		pkgs = []string{}
	}
	return WireProcess{
		PID:          strconv.Itoa(h.PID),
		Name:         h.Name,
		PackageNames: pkgs,
	}
}

func failure(err error) Response {
	return Response{
		Success: false,
		Error: &WireError{
			Kind:    string(access.KindOf(err)),
			Message: err.Error(),
		},
	}
}

// Dispatch executes one structured request. Input validation runs first;
// backend errors come back normalized with their diagnostic text preserved
// in the message.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	switch req.Op {
	case "listProcesses":
		procs := s.ListProcesses(ctx)
		out := make([]WireProcess, 0, len(procs))
		for _, p := range procs {
			out = append(out, processToWire(p))
		}
		return Response{Success: true, Data: out}

	case "listRegions":
		pid, err := parsePID(req.PID)
		if err != nil {
			return failure(err)
		}
		regions, used, err := s.ListRegions(ctx, pid)
		if err != nil {
			resp := failure(err)
			resp.Backend = string(used)
			return resp
		}
		out := make([]WireRegion, 0, len(regions))
		for _, r := range regions {
			out = append(out, regionToWire(r))
		}
		return Response{Success: true, Data: out, Backend: string(used)}

	case "read":
		pid, err := parsePID(req.PID)
		if err != nil {
			return failure(err)
		}
		addr, err := parse.Address(req.Address)
		if err != nil {
			return failure(err)
		}
		size, err := parse.Size(req.Size)
		if err != nil {
			return failure(err)
		}
		res, err := s.ReadMemory(ctx, pid, addr, size)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Data: hex.EncodeToString(res.Data), Backend: string(res.Backend)}

	case "write":
		pid, err := parsePID(req.PID)
		if err != nil {
			return failure(err)
		}
		addr, err := parse.Address(req.Address)
		if err != nil {
			return failure(err)
		}
		payload, err := parse.HexPayload(req.Payload)
		if err != nil {
			return failure(err)
		}
		res, err := s.WriteMemory(ctx, pid, addr, payload, req.Confirmed)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Backend: string(res.Backend)}

	case "search":
		pid, err := parsePID(req.PID)
		if err != nil {
			return failure(err)
		}
		pattern, err := scan.Parse(req.Pattern)
		if err != nil {
			return failure(err)
		}
		matches, used, err := s.SearchMemory(ctx, pid, pattern, 0)
		if err != nil {
			resp := failure(err)
			resp.Backend = string(used)
			return resp
		}
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, parse.FormatAddress(m))
		}
		return Response{Success: true, Data: out, Backend: string(used)}
	}

	return failure(fmt.Errorf("%w: unknown op %q", access.ErrBackendUnavailable, req.Op))
}

func parsePID(text string) (int, error) {
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: bad pid %q", access.ErrNoSuchProcess, text)
	}
	return pid, nil
}
