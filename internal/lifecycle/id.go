package lifecycle

import (
	"fmt"
	"strings"

	k8s "github.com/aonescu/shopkeeper/internal/kubernetes"
)

const (
	// MaxIDLength is the longest id the deployment tool accepts as a release
	// name. Only new stores are held to it.
	MaxIDLength = 53
	// MaxNamespaceLength is the longest namespace name the cluster accepts.
	MaxNamespaceLength = 63
)

// DeriveID maps a store name to its namespace-safe id: the name is lowercased
// and every character outside [a-z0-9] becomes "-". DeriveID("MyShop!") is
// "store-myshop-".
func DeriveID(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(k8s.TenantPrefix) + len(lower))
	b.WriteString(k8s.TenantPrefix)
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ValidID reports whether id names a tenant namespace DeriveID could have
// produced, up to the cluster's namespace length limit.
func ValidID(id string) bool {
	if !strings.HasPrefix(id, k8s.TenantPrefix) || len(id) <= len(k8s.TenantPrefix) || len(id) > MaxNamespaceLength {
		return false
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}

// StoreURL is the public address of store id under domain.
func StoreURL(id, domain string) string {
	return fmt.Sprintf("http://%s.%s", id, domain)
}
