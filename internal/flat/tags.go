// Package flat renders normalized customers in the ILS flat-file format
// consumed by the patron batch loader.
package flat

import (
	"fmt"
	"strings"

	"ilsgate/internal/fields"
)

// Tags for canonical fields. City and province share CITY/STATE.
var fieldTags = map[string]string{
	fields.FirstName:  "USER_FIRST_NAME",
	fields.LastName:   "USER_LAST_NAME",
	fields.DOB:        "USER_BIRTH_DATE",
	fields.Gender:     "USER_CATEGORY2",
	fields.Email:      "EMAIL",
	fields.Phone:      "PHONE",
	fields.Street:     "STREET",
	fields.City:       cityState,
	fields.Province:   cityState,
	fields.Country:    "COUNTRY",
	fields.PostalCode: "POSTALCODE",
	fields.Barcode:    "USER_ID",
	fields.PIN:        "USER_PIN",
	fields.Type:       "USER_PROFILE",
	fields.Expiry:     "USER_PRIV_EXPIRES",
	fields.Branch:     "USER_LIBRARY",
	fields.Status:     "USER_STATUS",
	fields.Notes:      "NOTE",
}

const cityState = "CITY/STATE"

// Block names. Address blocks are emitted in order, then extended info.
const (
	BlockAddr1 = "USER_ADDR1"
	BlockAddr2 = "USER_ADDR2"
	BlockAddr3 = "USER_ADDR3"
	BlockXInfo = "USER_XINFO"
)

var blockOrder = []string{BlockAddr1, BlockAddr2, BlockAddr3, BlockXInfo}

var addressTags = set(
	"EMAIL", "PHONE", "DAYPHONE", "HOMEPHONE", "WORKPHONE", "CELLPHONE", "FAX",
	"STREET", "APT/SUITE", "CARE/OF", cityState, "COUNTRY", "POSTALCODE", "ZIP",
)

var xinfoTags = set(
	"NOTE", "COMMENT", "STAFF", "WEBAUTHID", "PREV_ID", "PREV_ID2", "NOTIFY_VIA", "HOMEPHONE_NOTIFY",
)

var inlineTags = set(
	"USER_ID", "USER_ALT_ID", "USER_GROUP_ID", "USER_NAME", "USER_FIRST_NAME", "USER_LAST_NAME",
	"USER_MIDDLE_NAME", "USER_PREFERRED_NAME", "USER_NAME_DSP_PREF", "USER_LIBRARY", "USER_PROFILE",
	"USER_STATUS", "USER_PIN", "USER_BIRTH_DATE", "USER_PRIV_GRANTED", "USER_PRIV_EXPIRES",
	"USER_ACCESS", "USER_ENVIRONMENT", "USER_LANGUAGE", "USER_MAILINGADDR", "USER_CHG_HIST_RULE",
	"USER_ROUTING_FLAG", "USER_WEB_AUTH", "USER_DEPARTMENT", "USER_TITLE",
)

func init() {
	for i := 1; i <= 12; i++ {
		inlineTags[fmt.Sprintf("USER_CATEGORY%d", i)] = struct{}{}
	}
}

func set(tags ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return m
}

// TagFor returns the tag a canonical field is written under.
func TagFor(field string) (string, bool) {
	t, ok := fieldTags[field]
	return t, ok
}

// Route is where a tag ends up: Block is empty for inline tags.
type Route struct {
	Block string
	Tag   string
}

// Key identifies the route for duplicate detection.
func (r Route) Key() string {
	if r.Block == "" {
		return r.Tag
	}
	return r.Block + "." + r.Tag
}

// Resolve routes a tag key. Keys are either a bare tag or a block-qualified
// tag such as "USER_ADDR2.STREET". Bare address tags go to the first
// address block and bare extended-info tags to the extended-info block.
func Resolve(key string) (Route, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if block, tag, ok := strings.Cut(key, "."); ok {
		switch block {
		case BlockAddr1, BlockAddr2, BlockAddr3:
			if _, known := addressTags[tag]; known {
				return Route{Block: block, Tag: tag}, true
			}
		case BlockXInfo:
			if _, known := xinfoTags[tag]; known {
				return Route{Block: block, Tag: tag}, true
			}
		}
		return Route{}, false
	}
	if _, ok := inlineTags[key]; ok {
		return Route{Tag: key}, true
	}
	if _, ok := addressTags[key]; ok {
		return Route{Block: BlockAddr1, Tag: key}, true
	}
	if _, ok := xinfoTags[key]; ok {
		return Route{Block: BlockXInfo, Tag: key}, true
	}
	return Route{}, false
}
