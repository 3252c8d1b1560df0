package categories

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/bits"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/sudorandom/flowscope/pkg/utils"
)

// RIRDelegatedURLs are the registries' delegation statistics. Together they
// give a country for every allocated IPv4 block, a coarse fallback when no
// GeoIP database is available.
var RIRDelegatedURLs = map[string]string{
	"APNIC":   "https://ftp.apnic.net/stats/apnic/delegated-apnic-latest",
	"RIPE":    "https://ftp.ripe.net/pub/stats/ripencc/delegated-ripencc-latest",
	"AFRINIC": "https://ftp.afrinic.net/pub/stats/afrinic/delegated-afrinic-latest",
	"LACNIC":  "https://ftp.lacnic.net/pub/stats/lacnic/delegated-lacnic-latest",
	"ARIN":    "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-latest",
}

// ParseDelegated reads a delegation statistics file and returns a
// "country:<name>" -> prefixes mapping. Ranges that do not fall on a prefix
// boundary are split into the covering prefixes.
func ParseDelegated(r io.Reader) (map[string][]string, error) {
	out := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "|")
		if len(parts) < 7 || parts[2] != "ipv4" || parts[1] == "" || parts[1] == "*" {
			continue
		}
		start, err := utils.ParseIPv4(parts[3])
		if err != nil {
			continue
		}
		count, err := strconv.ParseUint(parts[4], 10, 32)
		if err != nil || count == 0 {
			continue
		}
		name := "country:" + CountryName(parts[1], "")
		out[name] = append(out[name], rangeToPrefixes(start, uint32(count))...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read delegated stats: %w", err)
	}
	return out, nil
}

// rangeToPrefixes splits [start, start+count) into aligned prefixes.
func rangeToPrefixes(start, count uint32) []string {
	var out []string
	for count > 0 {
		size := uint32(1) << min(bits.TrailingZeros32(start), 31)
		for size > count {
			size >>= 1
		}
		out = append(out, fmt.Sprintf("%s/%d", utils.IntToIP(start), 32-bits.TrailingZeros32(size)))
		start += size
		count -= size
	}
	return out
}

// FetchDelegated loads every registry's statistics and merges them.
func FetchDelegated(ctx context.Context, f *utils.Fetcher) (map[string][]string, error) {
	merged := make(map[string][]string)
	var errs error
	for name, url := range RIRDelegatedURLs {
		rc, err := f.Open(ctx, url, "rir-"+strings.ToLower(name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fetch %s: %w", name, err))
			continue
		}
		m, err := ParseDelegated(rc)
		rc.Close()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("parse %s: %w", name, err))
			continue
		}
		for k, v := range m {
			merged[k] = append(merged[k], v...)
		}
	}
	return merged, errs
}
