package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
)

var (
	objectDef  = regexp.MustCompile(`(?:^|[\s>])(\d+)\s+(\d+)\s+obj\b`)
	trailerDef = regexp.MustCompile(`trailer\s*<<`)
)

// repair scans the entire file to reconstruct the xref table. Later
// definitions of an object number replace earlier ones, and the last
// trailer dictionary in the file is kept.
func repair(ctx context.Context, data []byte) (*table, error) {
	entries := make(map[int]entry)
	for i, m := range objectDef.FindAllSubmatchIndex(data, -1) {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		num, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(data[m[4]:m[5]]))
		if err != nil {
			continue
		}
		entries[num] = entry{offset: int64(m[2]), gen: gen}
	}
	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	trailer := Trailer{}
	if locs := trailerDef.FindAllIndex(data, -1); len(locs) > 0 {
		start := locs[len(locs)-1][1] - 2
		if end := bytes.Index(data[start:], []byte(">>")); end >= 0 {
			trailer = parseTrailer(data[start : start+end+2])
		}
	}
	if _, ok := trailer["Size"]; !ok {
		// Construct minimal trailer if missing
		maxNum := 0
		for num := range entries {
			maxNum = max(maxNum, num)
		}
		trailer["Size"] = int64(maxNum + 1)
	}

	return &table{entries: entries, offset: -1, trailer: trailer, typ: "repaired"}, nil
}
