package categories

import (
	"fmt"
	"net"
	"strings"

	"github.com/biter777/countries"
	"github.com/oschwald/maxminddb-golang"
)

// GeoIP looks up the country of an address in a MaxMind-format database.
type GeoIP struct {
	reader *maxminddb.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoIP{reader: r}, nil
}

// GeoIPFromBytes opens a database already held in memory.
func GeoIPFromBytes(b []byte) (*GeoIP, error) {
	r, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("load geoip database: %w", err)
	}
	return &GeoIP{reader: r}, nil
}

func (g *GeoIP) Close() error {
	return g.reader.Close()
}

// Country returns the ISO code and English name of the country an address is
// registered in.
func (g *GeoIP) Country(addr string) (code, name string, ok bool) {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil || ip.To4() == nil {
		return "", "", false
	}
	var record struct {
		Country struct {
			ISOCode string            `maxminddb:"iso_code"`
			Names   map[string]string `maxminddb:"names"`
		} `maxminddb:"country"`
	}
	if err := g.reader.Lookup(ip, &record); err != nil || record.Country.ISOCode == "" {
		return "", "", false
	}
	return record.Country.ISOCode, CountryName(record.Country.ISOCode, record.Country.Names["en"]), true
}

// CountryName resolves an ISO code to a display name, falling back to the
// database's own name and then the code.
func CountryName(code, fallback string) string {
	if c := countries.ByName(code); c != countries.Unknown {
		return c.String()
	}
	if fallback != "" {
		return fallback
	}
	return strings.ToUpper(code)
}
