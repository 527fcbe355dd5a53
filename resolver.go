package authcore

import (
	"context"
	"errors"
	"strings"
)

// resolvedIdentity is the resolver's output: the read-only principal view
// plus the raw records it was assembled from. The override may be nil when
// the user has never logged in or been administratively touched.
type resolvedIdentity struct {
	principal Principal
	person    *PersonRecord
	override  *OverrideRecord
	source    AuthSource
}

// identityResolver merges per-source person records with the local override
// record. It is the only place that dispatches on the source tag; everything
// downstream works with the Principal interface.
type identityResolver struct {
	directories map[AuthSource]PersonDirectory
	overrides   OverrideStore
}

func newIdentityResolver(directories map[AuthSource]PersonDirectory, overrides OverrideStore) *identityResolver {
	return &identityResolver{
		directories: directories,
		overrides:   overrides,
	}
}

// fallbackOrder is the directory priority when no source is claimed.
// Azure AD identities resolve only on explicit selection.
var fallbackOrder = []AuthSource{SourceLocal, SourceNomis, SourceDelius}

// NormalizeUsername applies the canonical username form used for every
// comparison and storage key.
func NormalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

// Resolve produces a single principal for the username, querying directories
// in priority order and overlaying the override record. Read-only; it never
// fabricates a principal and never writes the override.
func (r *identityResolver) Resolve(ctx context.Context, username string, source AuthSource) (*resolvedIdentity, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, ErrMissingCredentials
	}

	person, foundSource, err := r.lookup(ctx, username, source)
	if err != nil {
		return nil, err
	}

	override, err := r.overrides.Find(ctx, username)
	if err != nil && !errors.Is(err, ErrOverrideNotFound) {
		return nil, err
	}

	return &resolvedIdentity{
		principal: newPrincipal(foundSource, person, override),
		person:    person,
		override:  override,
		source:    foundSource,
	}, nil
}

func (r *identityResolver) lookup(ctx context.Context, username string, source AuthSource) (*PersonRecord, AuthSource, error) {
	if source != SourceNone && source != "" {
		dir, ok := r.directories[source]
		if !ok {
			return nil, SourceNone, ErrPersonNotFound
		}
		person, err := dir.Lookup(ctx, username)
		if err != nil {
			return nil, SourceNone, err
		}
		if person == nil {
			return nil, SourceNone, ErrPersonNotFound
		}
		return person, source, nil
	}

	for _, candidate := range fallbackOrder {
		dir, ok := r.directories[candidate]
		if !ok {
			continue
		}
		person, err := dir.Lookup(ctx, username)
		if err != nil {
			if errors.Is(err, ErrPersonNotFound) {
				continue
			}
			return nil, SourceNone, err
		}
		if person == nil {
			continue
		}
		return person, candidate, nil
	}

	return nil, SourceNone, ErrPersonNotFound
}

// newPrincipal builds the source-specific principal variant, with override
// fields taking precedence over what the source system reports.
func newPrincipal(source AuthSource, person *PersonRecord, override *OverrideRecord) Principal {
	base := basePrincipal{
		username:              person.Username,
		displayName:           person.DisplayName,
		authorities:           append([]string(nil), person.Roles...),
		enabled:               person.Enabled,
		accountNonLocked:      person.AccountNonLocked,
		credentialsNonExpired: person.CredentialsNonExpired,
	}

	if override != nil {
		if override.Locked {
			base.accountNonLocked = false
		}
		if !override.Enabled {
			base.enabled = false
		}
	}

	switch source {
	case SourceLocal:
		return &LocalPrincipal{basePrincipal: base, passwordHash: person.PasswordHash}
	case SourceNomis:
		return &NomisPrincipal{basePrincipal: base, passwordHash: person.PasswordHash}
	case SourceDelius:
		return &DeliusPrincipal{basePrincipal: base}
	case SourceAzureAD:
		return &AzurePrincipal{basePrincipal: base}
	default:
		return &LocalPrincipal{basePrincipal: base, passwordHash: person.PasswordHash}
	}
}
