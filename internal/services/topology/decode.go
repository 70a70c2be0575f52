package topology

import (
	"strconv"
	"strings"

	"github.com/ternarybob/cmabridge/internal/models"
)

// vlanTag accepts a number or numeric string; anything else is absent
type vlanTag struct {
	value *int
}

func (v *vlanTag) UnmarshalJSON(data []byte) error {
	var s models.FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		v.value = nil
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil {
		v.value = nil
		return nil
	}
	v.value = &n
	return nil
}

type idRef struct {
	ID models.FlexString `json:"id"`
}

type snapshotSites struct {
	ID    models.FlexString `json:"id"`
	Sites []struct {
		ID   models.FlexString `json:"id"`
		Info *struct {
			Name string `json:"name"`
		} `json:"info"`
	} `json:"sites"`
}

type siteInfo struct {
	ID         models.FlexString `json:"id"`
	Name       string     `json:"name"`
	Interfaces []struct {
		ID      models.FlexString `json:"id"`
		Name    string     `json:"name"`
		Subnets []struct {
			ID           models.FlexString `json:"id"`
			Name         string     `json:"name"`
			Type         string     `json:"type"`
			Subnet       *idRef     `json:"subnet"`
			Gateway      *idRef     `json:"gateway"`
			VLANTag      vlanTag    `json:"vlanTag"`
			DHCPSettings *struct {
				DHCPType string `json:"dhcpType"`
			} `json:"dhcpSettings"`
		} `json:"subnets"`
	} `json:"interfaces"`
}

type accountRanges struct {
	ID                             models.FlexString `json:"id"`
	VPNRange                       *idRef     `json:"vpnRange"`
	VPNRangeForDynamicIPAllocation *idRef     `json:"vpnRangeForDynamicIPAllocation"`
	AccessSettings                 *struct {
		StaticIPRange *idRef `json:"staticIpRange"`
	} `json:"accessSettings"`
}

func refID(ref *idRef) string {
	if ref == nil {
		return ""
	}
	return string(ref.ID)
}
