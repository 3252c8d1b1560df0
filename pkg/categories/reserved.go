package categories

// Reserved maps special-purpose IPv4 blocks (RFC 6890) to categories. Load it
// before site mappings: a later mapping of the same prefix replaces it, and a
// more specific prefix wins regardless of order.
var Reserved = map[string][]string{
	"reserved:this-network":  {"0.0.0.0/8"},
	"reserved:private":       {"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	"reserved:shared":        {"100.64.0.0/10"},
	"reserved:loopback":      {"127.0.0.0/8"},
	"reserved:link-local":    {"169.254.0.0/16"},
	"reserved:documentation": {"192.0.2.0/24", "198.51.100.0/24", "203.0.113.0/24"},
	"reserved:benchmarking":  {"198.18.0.0/15"},
	"reserved:multicast":     {"224.0.0.0/4"},
	"reserved:future-use":    {"240.0.0.0/4"},
	"reserved:broadcast":     {"255.255.255.255/32"},
}
