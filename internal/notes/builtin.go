package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ilsgate/internal/customer"
	"ilsgate/internal/fields"
	"ilsgate/internal/policy"
)

// DefaultCategoryTag receives the category chosen by CategoryHook when the
// policy names no tag.
const DefaultCategoryTag = "USER_CATEGORY3"

// Builtins returns the hooks every deployment ships with.
func Builtins() []Hook {
	return []Hook{CategoryHook{}, AnnotateHook{}}
}

// CategoryHook reads the notes text as a category name and translates it
// through notes.categories onto a category tag. Notes naming no known
// category become an error-shaped value.
type CategoryHook struct{}

func (CategoryHook) Name() string { return "category" }

func (CategoryHook) Apply(ctx context.Context, c *customer.Customer, p policy.Policy) error {
	text := strings.TrimSpace(c.Value(fields.Notes))
	if text == "" || len(p.Notes.Categories) == 0 {
		return nil
	}
	tag := p.Notes.Tag
	if tag == "" {
		tag = DefaultCategoryTag
	}

	code, ok := p.Notes.Categories[text]
	if !ok {
		keys := make([]string, 0, len(p.Notes.Categories))
		for k := range p.Notes.Categories {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.EqualFold(k, text) {
				code, ok = p.Notes.Categories[k], true
				break
			}
		}
	}
	if !ok {
		c.Set(fields.Notes, fmt.Sprintf("%s unknown category %q", ErrorPrefix, text))
		return nil
	}
	c.Set(tag, code)
	return ctx.Err()
}

// AnnotateHook prefixes the notes with notes.prefix so staff can tell which
// partner a registration came from.
type AnnotateHook struct{}

func (AnnotateHook) Name() string { return "annotate" }

func (AnnotateHook) Apply(_ context.Context, c *customer.Customer, p policy.Policy) error {
	prefix := strings.TrimSpace(p.Notes.Prefix)
	if prefix == "" {
		return nil
	}
	text := c.Value(fields.Notes)
	switch {
	case text == "":
		c.Set(fields.Notes, prefix)
	case !strings.HasPrefix(text, prefix):
		c.Set(fields.Notes, prefix+" "+text)
	}
	return nil
}
