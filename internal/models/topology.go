package models

// NetworkEntry is one subnet of one site interface, flattened for display
type NetworkEntry struct {
	InterfaceName string `json:"interface_name"`
	SubnetName    string `json:"subnet_name"`
	Type          string `json:"type"`
	CIDR          string `json:"cidr"`
	Gateway       string `json:"gateway"`
	VLAN          *int   `json:"vlan"`
	DHCPType      string `json:"dhcp_type"`
}

// Site is a tenant site with its flattened networks.
// Error is set when the site's interfaces could not be fetched.
type Site struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Error    string         `json:"error,omitempty"`
	Networks []NetworkEntry `json:"networks"`
}

// RemoteIPRanges holds the account-wide remote user IP ranges
type RemoteIPRanges struct {
	Default string `json:"default"`
	Dynamic string `json:"dynamic"`
	Static  string `json:"static"`
}

// TopologyResult is the aggregated static route topology, built fresh per request
type TopologyResult struct {
	Sites          []Site         `json:"sites"`
	RemoteIPRanges RemoteIPRanges `json:"remoteIpRanges"`
}
