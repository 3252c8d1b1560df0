package categories

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/utils"
)

// CloudRange is one published address range of a cloud provider.
type CloudRange struct {
	Prefix   string
	Provider string
	Region   string
	Service  string
}

// CloudFeed is a provider's published range list and how to read it.
type CloudFeed struct {
	Provider string
	URL      string
	Parse    func(io.Reader) ([]CloudRange, error)
}

// DefaultCloudFeeds are the providers loaded when cloud categories are enabled.
var DefaultCloudFeeds = []CloudFeed{
	{Provider: "aws", URL: "https://ip-ranges.amazonaws.com/ip-ranges.json", Parse: ParseAWSRanges},
	{Provider: "google", URL: "https://www.gstatic.com/ipranges/cloud.json", Parse: ParseGoogleRanges},
	{Provider: "oracle", URL: "https://docs.oracle.com/en-us/iaas/tools/public_ip_ranges.json", Parse: ParseOracleRanges},
	{Provider: "digitalocean", URL: "https://digitalocean.com/geo/google.csv", Parse: ParseDigitalOceanRanges},
}

// ipv4Only drops ranges that are not IPv4 prefixes.
func ipv4Only(prefix string) bool {
	_, _, err := utils.ParsePrefix(prefix)
	return err == nil
}

func ParseAWSRanges(r io.Reader) ([]CloudRange, error) {
	var doc struct {
		Prefixes []struct {
			IPPrefix string `json:"ip_prefix"`
			Region   string `json:"region"`
			Service  string `json:"service"`
		} `json:"prefixes"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode aws ranges: %w", err)
	}
	var out []CloudRange
	for _, p := range doc.Prefixes {
		if ipv4Only(p.IPPrefix) {
			out = append(out, CloudRange{Prefix: p.IPPrefix, Provider: "aws", Region: p.Region, Service: p.Service})
		}
	}
	return out, nil
}

func ParseGoogleRanges(r io.Reader) ([]CloudRange, error) {
	var doc struct {
		Prefixes []struct {
			IPv4Prefix string `json:"ipv4Prefix"`
			Scope      string `json:"scope"`
			Service    string `json:"service"`
		} `json:"prefixes"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode google ranges: %w", err)
	}
	var out []CloudRange
	for _, p := range doc.Prefixes {
		if p.IPv4Prefix != "" && ipv4Only(p.IPv4Prefix) {
			out = append(out, CloudRange{Prefix: p.IPv4Prefix, Provider: "google", Region: p.Scope, Service: p.Service})
		}
	}
	return out, nil
}

// ParseAzureRanges reads the Azure service tags document.
func ParseAzureRanges(r io.Reader) ([]CloudRange, error) {
	var doc struct {
		Values []struct {
			Name       string `json:"name"`
			Properties struct {
				Region          string   `json:"region"`
				AddressPrefixes []string `json:"addressPrefixes"`
			} `json:"properties"`
		} `json:"values"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode azure ranges: %w", err)
	}
	var out []CloudRange
	for _, v := range doc.Values {
		for _, prefix := range v.Properties.AddressPrefixes {
			if ipv4Only(prefix) {
				out = append(out, CloudRange{Prefix: prefix, Provider: "azure", Region: v.Properties.Region, Service: v.Name})
			}
		}
	}
	return out, nil
}

func ParseOracleRanges(r io.Reader) ([]CloudRange, error) {
	var doc struct {
		Regions []struct {
			Region string `json:"region"`
			CIDRs  []struct {
				CIDR string   `json:"cidr"`
				Tags []string `json:"tags"`
			} `json:"cidrs"`
		} `json:"regions"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode oracle ranges: %w", err)
	}
	var out []CloudRange
	for _, reg := range doc.Regions {
		for _, c := range reg.CIDRs {
			if ipv4Only(c.CIDR) {
				out = append(out, CloudRange{Prefix: c.CIDR, Provider: "oracle", Region: reg.Region, Service: "OCI"})
			}
		}
	}
	return out, nil
}

// ParseDigitalOceanRanges reads the geofeed CSV: prefix,country,region,city,postal.
func ParseDigitalOceanRanges(r io.Reader) ([]CloudRange, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	var out []CloudRange
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read digitalocean ranges: %w", err)
		}
		if len(rec) < 3 || !ipv4Only(rec[0]) {
			continue
		}
		out = append(out, CloudRange{Prefix: rec[0], Provider: "digitalocean", Region: rec[2], Service: "DigitalOcean"})
	}
	return out, nil
}

// CloudCategories turns ranges into a category mapping, one "cloud:<provider>"
// category per provider.
func CloudCategories(ranges []CloudRange) map[string][]string {
	out := make(map[string][]string)
	for _, r := range ranges {
		name := "cloud:" + r.Provider
		out[name] = append(out[name], r.Prefix)
	}
	return out
}

// FetchCloudRanges downloads and parses each feed. Feeds that fail are
// reported in the returned error; ranges from the others are still returned.
func FetchCloudRanges(ctx context.Context, f *utils.Fetcher, feeds []CloudFeed, log *zap.SugaredLogger) ([]CloudRange, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var all []CloudRange
	var errs error
	for _, feed := range feeds {
		rc, err := f.Open(ctx, feed.URL, "cloud-"+feed.Provider)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fetch %s ranges: %w", feed.Provider, err))
			continue
		}
		ranges, err := feed.Parse(rc)
		rc.Close()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		log.Infof("Loaded %d %s ranges", len(ranges), feed.Provider)
		all = append(all, ranges...)
	}
	return all, errs
}
