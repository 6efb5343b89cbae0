package policy

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"ilsgate/internal/fields"
	dErrors "ilsgate/pkg/domain-errors"
)

const mapSuffix = "Map"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("canonical", func(fl validator.FieldLevel) bool {
		return fields.IsCanonical(fl.Field().String())
	})
	return v
}

// Decode builds a Policy from a raw configuration object. Keys it does not
// recognize are logged and ignored. Type mismatches and failed constraints
// are CodeValidation errors.
func Decode(raw map[string]any, logger *slog.Logger) (Policy, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var p Policy
	if len(raw) == 0 {
		return p, nil
	}

	input, err := gatherMaps(raw)
	if err != nil {
		return Policy{}, err
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Metadata:         &md,
	})
	if err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build policy decoder")
	}
	if err := dec.Decode(input); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed policy")
	}

	unused := append([]string(nil), md.Unused...)
	sort.Strings(unused)
	for _, key := range unused {
		logger.Warn("ignoring unrecognized policy key", "key", key)
	}

	sanitize(&p)
	if err := Validate(p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the constraints a decoded policy must satisfy.
func Validate(p Policy) error {
	if err := validate.Struct(p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid policy")
	}
	return nil
}

// gatherMaps moves "<field>Map" keys for canonical fields under "maps" so
// the decoder sees one structured key. Other keys are copied untouched.
func gatherMaps(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	maps := map[string]any{}
	for k, v := range raw {
		field, ok := strings.CutSuffix(k, mapSuffix)
		if ok && fields.IsCanonical(field) {
			maps[field] = v
			continue
		}
		out[k] = v
	}
	if len(maps) > 0 {
		if _, clash := out["maps"]; clash {
			return nil, dErrors.New(dErrors.CodeValidation, "policy sets both \"maps\" and <field>Map keys")
		}
		out["maps"] = maps
	}
	return out, nil
}

// toStringMap converts the map shapes YAML and JSON decoders produce into
// map[string]any, recursively.
func toStringMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = normalizeValue(val)
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("expected an object, got %T", v))
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		m, _ := toStringMap(t)
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
