package graphql

// Operation names known to the executor
const (
	OpLoginState           = "loginState"
	OpAccountSnapshotSites = "accountSnapshotSites"
	OpSiteInfo             = "siteInfo"
	OpAccount              = "account"
)

// LoginStateQuery returns the identity of the authenticated user
const LoginStateQuery = `query loginState($authcode: String, $authstate: String) {
  loginState(authcode: $authcode, authstate: $authstate) {
    id
    firstName
    lastName
    email
    role
    appliedRole
    elevatedForAll
    elevatedAccountIds
    accountType
    username
    personName
    accountID
    authService
    accountName
    preferredUi
    presentUsageAndEvents
    touIsApproved
    whiteLabel {
      key
      theme
      __typename
    }
    tags
    adminTags
    __typename
  }
}
`

// AccountSnapshotSitesQuery lists the sites of one account
const AccountSnapshotSitesQuery = `query accountSnapshotSites($accountID: ID!) {
  accountSnapshot(accountID: $accountID) {
    id
    sites {
      id
      info {
        name
      }
    }
  }
}
`

// SiteInfoQuery returns interfaces and subnets of one site
const SiteInfoQuery = `query siteInfo($siteId: ID!) {
  siteInfo(id: $siteId) {
    id
    name
    interfaces {
      id
      name
      subnets {
        id
        name
        type
        subnet {
          id
        }
        gateway {
          id
        }
        vlanTag
        dhcpSettings {
          dhcpType
        }
      }
    }
  }
}
`

// AccountQuery returns the remote-user IP ranges of an account
const AccountQuery = `query account($accountID: ID!) {
  account(accountID: $accountID) {
    id
    vpnRange {
      id
    }
    vpnRangeForDynamicIPAllocation {
      id
    }
    accessSettings {
      staticIpRange {
        id
      }
    }
  }
}
`

// namedQuery is a registered operation runnable by name
type namedQuery struct {
	query    string
	defaults func() map[string]interface{}
}

var registry = map[string]namedQuery{
	OpLoginState: {
		query:    LoginStateQuery,
		defaults: LoginStateVariables,
	},
	OpAccountSnapshotSites: {query: AccountSnapshotSitesQuery},
	OpSiteInfo:             {query: SiteInfoQuery},
	OpAccount:              {query: AccountQuery},
}

// LoginStateVariables are the variables the console itself sends
func LoginStateVariables() map[string]interface{} {
	return map[string]interface{}{
		"authcode":  nil,
		"authstate": nil,
	}
}

// IsRegistered reports whether name can be run through RunNamed
func IsRegistered(name string) bool {
	_, ok := registry[name]
	return ok
}
