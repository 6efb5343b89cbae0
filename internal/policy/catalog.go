package policy

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	dErrors "ilsgate/pkg/domain-errors"
	"ilsgate/pkg/platform/sentinel"
)

// Catalog is the library policy plus every partner's overrides, decoded
// once at startup and read-only afterwards.
type Catalog struct {
	Library  Policy
	Partners map[string]Policy
}

// LoadCatalog reads a YAML or JSON catalog file of the form
//
//	library: {...}
//	partners:
//	  <id>: {...}
func LoadCatalog(fs afero.Fs, path string, logger *slog.Logger) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("failed to read policy catalog %s", path))
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("failed to parse policy catalog %s", path))
	}
	return NewCatalog(raw, logger)
}

// NewCatalog decodes a catalog from its raw object form.
func NewCatalog(raw map[string]any, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	root, err := toStringMap(any(raw))
	if err != nil {
		return nil, err
	}

	for key := range root {
		if key != "library" && key != "partners" {
			logger.Warn("ignoring unrecognized catalog key", "key", key)
		}
	}

	libRaw, err := toStringMap(root["library"])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "library policy")
	}
	library, err := Decode(libRaw, logger.With("policy", "library"))
	if err != nil {
		return nil, err
	}

	partnersRaw, err := toStringMap(root["partners"])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "partners")
	}
	c := &Catalog{Library: library, Partners: make(map[string]Policy, len(partnersRaw))}
	for id, v := range partnersRaw {
		pRaw, err := toStringMap(v)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("partner %s", id))
		}
		p, err := Decode(pRaw, logger.With("policy", id))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("partner %s", id))
		}
		c.Partners[strings.ToLower(id)] = p
	}
	return c, nil
}

// ForPartner returns the effective policy for a partner. An empty id
// yields the library policy alone.
func (c *Catalog) ForPartner(id string) (Policy, error) {
	if id == "" {
		return c.Library.clone(), nil
	}
	p, ok := c.Partners[strings.ToLower(id)]
	if !ok {
		return Policy{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("unknown partner %q", id))
	}
	return Merge(c.Library, p)
}

// Partner returns a partner's own policy, before merging.
func (c *Catalog) Partner(id string) (Policy, bool) {
	p, ok := c.Partners[strings.ToLower(id)]
	return p, ok
}

// PartnerIDs returns the known partner ids in sorted order.
func (c *Catalog) PartnerIDs() []string {
	ids := make([]string, 0, len(c.Partners))
	for id := range c.Partners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
