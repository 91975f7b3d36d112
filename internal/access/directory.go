package access

import (
	"strings"

	"balancesheet-rag/internal/config"
	"balancesheet-rag/internal/models"
)

// Directory resolves authenticated usernames to principals. It is loaded
// once from configuration; user management itself is an external concern.
type Directory struct {
	principals map[string]Principal
}

// NewDirectory builds the principal directory from configuration.
func NewDirectory(principals map[string]config.PrincipalConfig) *Directory {
	d := &Directory{principals: make(map[string]Principal, len(principals))}
	for username, p := range principals {
		key := strings.ToLower(username)
		d.principals[key] = Principal{
			Username:  key,
			Role:      models.Role(p.Role),
			Companies: append([]string(nil), p.Companies...),
		}
	}
	return d
}

// Lookup returns the principal for a username, if known.
func (d *Directory) Lookup(username string) (Principal, bool) {
	p, ok := d.principals[strings.ToLower(username)]
	return p, ok
}
