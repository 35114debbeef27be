// SPDX-License-Identifier: Apache-2.0

package statestore

import "strings"

// DeploymentKeyPrefix namespaces all deployment records.
const DeploymentKeyPrefix = "deployment:"

// DeploymentKey returns the record key for a site: deployment:{site_id}
func DeploymentKey(siteID string) string {
	return DeploymentKeyPrefix + siteID
}

// SiteIDFromKey strips the deployment prefix from a record key.
func SiteIDFromKey(key string) string {
	return strings.TrimPrefix(key, DeploymentKeyPrefix)
}
