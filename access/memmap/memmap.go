// Package memmap parses the kernel's textual memory-map representation into
// region records.
package memmap

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Region is a contiguous range of a process's virtual address space with
// uniform access permissions. End is exclusive; End > Start always holds for
// parsed regions.
type Region struct {
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
	Perms  string `json:"perms"`
	Offset uint64 `json:"offset"`
	Dev    string `json:"dev"`
	Inode  uint64 `json:"inode"`
	Path   string `json:"path,omitempty"`
}

func (r Region) Size() uint64 { return r.End - r.Start }

func (r Region) IsReadable() bool   { return len(r.Perms) > 0 && r.Perms[0] == 'r' }
func (r Region) IsWritable() bool   { return len(r.Perms) > 1 && r.Perms[1] == 'w' }
func (r Region) IsExecutable() bool { return len(r.Perms) > 2 && r.Perms[2] == 'x' }
func (r Region) IsShared() bool     { return len(r.Perms) > 3 && r.Perms[3] == 's' }

// Kind classifies the region as "file" or "anonymous" depending on whether a
// backing path is present.
func (r Region) Kind() string {
	if r.Path != "" {
		return "file"
	}
	return "anonymous"
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("%012x-%012x %s %s", r.Start, r.End, r.Perms, r.Path)
}

// Parse reads records of the shape
//
//	start-end perms offset dev inode [path]
//
// and returns them sorted by ascending start address. Records with fewer
// than five fields or unparsable hex ranges are skipped, not fatal: exotic
// virtual mappings are expected and the list is best-effort.
func Parse(r io.Reader) ([]Region, error) {
	var regions []Region

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		region, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		regions = append(regions, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading memory map: %w", err)
	}

	// The kernel emits regions in ascending order already; sorting keeps the
	// invariant even for a broker that concatenates output oddly.
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Start < regions[j].Start
	})

	return regions, nil
}

func parseLine(line string) (Region, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Region{}, false
	}

	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return Region{}, false
	}
	start, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return Region{}, false
	}
	end, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || end <= start {
		return Region{}, false
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Region{}, false
	}
	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return Region{}, false
	}

	region := Region{
		Start:  start,
		End:    end,
		Perms:  fields[1],
		Offset: offset,
		Dev:    fields[3],
		Inode:  inode,
	}
	if len(fields) > 5 {
		// Paths may contain spaces ("/data/app/My App.apk").
		region.Path = strings.Join(fields[5:], " ")
	}
	return region, true
}

// RegionFor returns the region containing addr, or nil. regions must be
// sorted by ascending start address.
func RegionFor(addr uint64, regions []Region) *Region {
	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].End > addr
	})
	if i < len(regions) && regions[i].Contains(addr) {
		return &regions[i]
	}
	return nil
}

// Contains reports whether addr is mapped by any region.
func Contains(addr uint64, regions []Region) bool {
	return RegionFor(addr, regions) != nil
}
